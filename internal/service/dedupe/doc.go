// Package dedupe admits verified payment events exactly once.
//
// Admission is a single atomic unique insert keyed on the provider event id.
// The first inserter wins; every concurrent or later delivery of the same id
// is reported as a Duplicate and must trigger no side effects.
package dedupe
