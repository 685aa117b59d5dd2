package oceantrack

const (
	metresPerDegree = 1852. * 60. // spherical mesh conversion
	tol             = 1e-10       // "contains" tolerance
	timeTol         = 1e-6        // seconds
	maxCachedSlices = 3           // deferred-load window
	rk45Tol         = 10.         // metres
	rk45MinDt       = 1.          // seconds
	rk45MaxDt       = 86400.      // seconds
)
