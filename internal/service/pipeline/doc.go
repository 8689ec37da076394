// Package pipeline drives an intake through created, paid, refined and
// mailed. Every step is a conditional write on the intake's current status,
// so a crashed, replayed or concurrent run resumes from the last committed
// state instead of repeating work.
package pipeline
