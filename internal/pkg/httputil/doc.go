// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every handler file should use these helpers instead of writing raw
// http.ResponseWriter calls. This keeps JSON formatting, error envelopes and
// logging consistent across endpoints, and keeps internals out of 5xx bodies.
package httputil
