// Package l1scan owns Layer 1 (Scans) of the estimator: validating a planar
// range-bearing scan and projecting it into Cartesian points in the
// sensor's own frame.
//
// Dependency rule: L1 depends only on the lost data model.
package l1scan
