// Package intake creates dispute cases and answers status queries.
//
// An intake is created once, when the user submits the form, and is never
// updated or deleted through this package. Lifecycle changes belong to the
// pipeline orchestrator.
package intake
