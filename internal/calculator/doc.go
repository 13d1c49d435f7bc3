// Package calculator combines weight modifiers into the final weight of a
// replica.
package calculator
