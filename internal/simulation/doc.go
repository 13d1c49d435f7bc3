// Package simulation replays synthetic traffic against simulated replicas to
// show how the weighted ordering shifts load when a replica degrades.
//
// A scenario is a YAML file of replica profiles. Requests are paced by a
// token bucket evaluated on a virtual clock, which the adaptive weighing
// reads as well.
package simulation
