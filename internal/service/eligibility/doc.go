// Package eligibility is the city eligibility gate.
//
// The registry is data, not code: it is loaded from a Source (a YAML file or
// a DynamoDB table), cached in memory, and reloaded after the refresh
// interval. A Gate is constructed once per process and injected wherever it
// is needed. Cities missing from the registry are not eligible.
package eligibility
