// Package l3grid owns Layer 3 (Grid) of the estimator: mapping map-frame
// coordinates onto occupancy grid cells, and loading occupancy grids from
// map_server style yaml+image files.
//
// Dependency rule: L3 may depend on L1 and L2, but never on L4.
package l3grid
