// Package httpserver runs the balancer's HTTP listener with validated
// address, configurable timeouts and graceful shutdown.
package httpserver
