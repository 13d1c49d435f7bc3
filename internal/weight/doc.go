// Package weight scores replicas against their cluster and stores the
// resulting weights.
//
// Scores live in [MinWeight, 1]. Each recomputation cycle normalizes its batch
// so the best replica ends at exactly 1, and smooths every new score against
// the previous one, rising slowly and falling fast.
package weight
