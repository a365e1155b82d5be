// Package policy holds the deterministic scoring heuristics used around the attempt engine:
// performance insights, adaptive difficulty and integrity assessment. Every function is pure:
// it takes a struct of numeric signals and returns a classification.
package policy
