// Package job models one generation submission and its per-frame state
// machine.
//
// Each frame moves independently:
//
//	Pending -> InFlight -> Succeeded
//	                    -> Failed -> (retry) -> Pending
//	Pending -> Cancelled                (job cancelled before dispatch)
//	InFlight -> Cancelled               (result arrived after cancellation)
//
// A Succeeded frame always carries an output and no error, a Failed frame
// always carries an error and no output. No transition on one frame reads
// or writes a sibling, which is what lets completed frames surface while
// others are still in flight or have failed.
//
// The aggregate Status is derived from the frames on every read and is
// never stored.
package job
