// Package handler implements the HTTP entry point of the balancer. Every
// request walks the replica order produced by the load balancer, and every
// attempt is reported back as an outcome. StateHandler exposes what the
// balancer has learned so far.
package handler
