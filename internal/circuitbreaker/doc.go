// Package circuitbreaker tracks consecutive rejected calls per replica of a
// cluster.
//
// A breaker has three states:
//
//   - CLOSED: the replica keeps its weight
//   - OPEN: the replica is down-weighted until the reset timeout passes
//   - HALF-OPEN: the replica gets its weight back until the next verdict decides
//
// Breakers never refuse a call. They only tell the breaker weight modifier
// which replicas to push towards the back of the order:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.Settings{FailureThreshold: 5, ResetTimeout: 30 * time.Second})
//	cb := registry.Get(circuitbreaker.Key{Cluster: cluster, Replica: "10.0.0.1:8080"})
//	if !cb.Allow() {
//	    weight *= downMultiplier
//	}
package circuitbreaker
