// Package replica defines the identifiers exchanged between the ordering
// engine and its callers: replicas, cluster keys, verdicts and call outcomes.
package replica
