// Package l2frames owns Layer 2 (Frames) of the estimator: a buffer of
// timestamped rigid transforms between named frames, bounded-wait lookups
// through that buffer, and moving point sets from one frame to another.
//
// Key types: Buffer, Transformer, ExtrapolationError.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2frames
