// Package backend wraps upstream replicas behind reverse proxies. It tracks
// health and active connections, and forwards requests so that transport
// failures can be retried on another replica.
package backend
