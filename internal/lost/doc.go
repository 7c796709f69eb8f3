// Package lost holds the shared data model of the localization-consistency
// estimator: frames, points, laser scans, occupancy grids, rigid transforms
// and the per-scan consistency result.
//
// The pipeline itself lives in the layer packages:
//
//	l1scan         range-bearing scan -> sensor-frame points
//	l2frames       transform buffer and sensor-frame -> map-frame transform
//	l3grid         map-frame coordinate -> occupancy grid cell
//	l4consistency  per-scan aggregation into a lost rate
//
// Dependency rule: a layer may depend on lower layers and on this package,
// never on a higher layer.
package lost
