// Package config loads the balancer configuration from a YAML file, an
// optional .env file and environment variables, and maps it onto the
// settings of the load balancer and its weight modifiers.
package config
