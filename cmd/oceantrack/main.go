package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maseology/mmio"
	"github.com/maseology/oceantrack"
	"github.com/maseology/oceantrack/examples/ofam"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose bool

	// Run flags
	configPath string
	exports    []string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "oceantrack",
	Short: "Lagrangian particle tracking through gridded ocean currents",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl := "info"
		if verbose {
			lvl = "debug"
		}
		l, err := oceantrack.NewLogger(oceantrack.LogConfig{Level: lvl})
		if err != nil {
			return err
		}
		logger = l
		oceantrack.SetLogger(l)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Advect particles as described by a run file",
	Long: `Reads a YAML run file naming the current fields, the particles to release,
the kernels to apply and the run length, then advects the particles.

Example:
  oceantrack run -c run.yaml --export csv --export geojson`,
	RunE: runAdvection,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file.nc...]",
	Short: "List the variables and dimensions of NetCDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  inspectFiles,
}

var sampleCmd = &cobra.Command{
	Use:   "sample [dir]",
	Short: "Write the idealized OFAM_simple U/V pair into dir",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ofam.WriteSample(args[0]); err != nil {
			return err
		}
		logger.Info("sample written", zap.String("dir", args[0]))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runCmd.Flags().StringVarP(&configPath, "config", "c", "run.yaml", "Run file")
	runCmd.Flags().StringSliceVar(&exports, "export", nil, "Also export trajectories as csv, geojson, vtk or gob")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(sampleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type exporter struct {
	ext    string
	export func(fp string, apl [][]oceantrack.Particle) error
}

var exporters = map[string]exporter{
	"csv": {".csv", oceantrack.ExportCSV},
	"geojson": {".geojson", func(fp string, apl [][]oceantrack.Particle) error {
		return oceantrack.SaveGeojson(fp, apl, true)
	}},
	"vtk": {".vtk", oceantrack.ExportVTKpathlines},
	"gob": {".gob", oceantrack.ExportPathlinesGob},
}

func checkExports(names []string) error {
	for _, e := range names {
		if _, ok := exporters[e]; !ok {
			return fmt.Errorf("unknown export format %q (valid: csv, geojson, vtk, gob)", e)
		}
	}
	return nil
}

// runAdvection executes the run file
func runAdvection(cmd *cobra.Command, args []string) error {
	if err := checkExports(exports); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := oceantrack.LoadRunConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !verbose {
		l, err := oceantrack.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		logger = l
		oceantrack.SetLogger(l)
	}
	defer logger.Sync()

	fs, err := cfg.BuildFieldSet(oceantrack.WithLogger(logger))
	if err != nil {
		return err
	}
	defer fs.Close()
	fs.Print()

	ps, err := cfg.BuildParticleSet(fs)
	if err != nil {
		return err
	}
	k, err := cfg.BuildKernel()
	if err != nil {
		return err
	}

	var pf *oceantrack.ParticleFile
	if cfg.Output != "" || len(exports) > 0 {
		out := cfg.Output
		if out == "" {
			out = mmio.RemoveExtension(configPath) + ".nc"
		}
		pf = oceantrack.NewParticleFile(out)
	}
	opts, err := cfg.ExecuteOptions(pf)
	if err != nil {
		return err
	}
	if err := ps.Execute(ctx, k, opts...); err != nil {
		return err
	}
	if pf == nil {
		return nil
	}
	if err := pf.Close(); err != nil {
		return err
	}
	logger.Info("particle file written", zap.String("path", pf.Path), zap.String("run_id", pf.RunID))

	trajs, base := pf.Trajectories(), mmio.RemoveExtension(pf.Path)
	for _, e := range exports {
		x := exporters[e]
		if err := x.export(base+x.ext, trajs); err != nil {
			return err
		}
		logger.Info("trajectories exported", zap.String("path", base+x.ext))
	}
	return nil
}

// inspectFiles prints the variables of each file, with dimensions and units
func inspectFiles(cmd *cobra.Command, args []string) error {
	ds, err := oceantrack.OpenDataset(args...)
	if err != nil {
		return err
	}
	defer ds.Close()
	out := cmd.OutOrStdout()
	for _, v := range ds.Variables() {
		dims, err := ds.Dimensions(v)
		if err != nil {
			return err
		}
		units, _ := ds.Attribute(v, "units").(string)
		fmt.Fprintf(out, "%-16s %v %s\n", v, dims, units)
	}
	return nil
}
