// Package modifier implements the stages of the weight calculation chain.
//
//   - Adaptive: scores every replica against its cluster from observed latency
//     and errors, recomputed at most once per update period
//   - Breaker: down-weights replicas with an open circuit
//   - Pin: boosts preferred replicas
//   - Health: zeroes replicas that fail their health probe
//
// Every modifier learns from call outcomes and adjusts a weight in place.
package modifier
