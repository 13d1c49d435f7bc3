// Package strategy turns per-replica weights into the visiting order of one
// request:
//
//   - Weighted: weighted sampling without replacement, infinite weights first
//     and zero weights last
//   - Random: uniform shuffle, weights ignored
//   - Round Robin: rotating start position, weights ignored
//
// Orders are lazy iter.Seq values. Callers usually stop after the first one
// or two replicas.
package strategy
