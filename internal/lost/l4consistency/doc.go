// Package l4consistency owns Layer 4 (Consistency) of the estimator. The
// Aggregator holds the latest map, scan and pose snapshots and, for each
// scan, runs L1 projection, L2 transformation into the map frame and L3 grid
// lookups to produce a lost.Result.
//
// This package is the composition root of the layer packages: it imports
// l1scan, l2frames and l3grid, and none of them import l4consistency.
package l4consistency
