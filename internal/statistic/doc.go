// Package statistic turns a stream of call outcomes into smoothed latency and
// error statistics.
//
// A Bucket is written concurrently by every caller with atomic adds only. Once
// per recomputation cycle an Accumulator is snapshotted: rejected calls are
// rewritten as if they had taken a penalty latency, sums become a mean and
// standard deviation, and the result is blended with the previous cycle using
// a wall-clock exponential filter.
package statistic
