// Package analysis is the analytical engine over a campus-card ledger batch.
//
// Every function here is pure: it takes a materialized slice of records plus
// numeric parameters and returns a plain result. Inputs are never mutated, so
// the functions are safe to call concurrently on the same or different batches.
// Empty input is never an error; each result type documents its zero value.
package analysis
