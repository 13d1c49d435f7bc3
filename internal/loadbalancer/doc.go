// Package loadbalancer wires the weight modifiers, the weight calculator and
// an orderer into a single client-side load balancer.
package loadbalancer
