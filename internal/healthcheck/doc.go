// Package healthcheck implements periodic health checking for backend servers.
// Probe results feed the backend health flag, which the weight chain turns
// into a zero weight.
package healthcheck
