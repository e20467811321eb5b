// Package progress carries harvest run events from the driver to pluggable
// sinks. A Hub batches events on a background goroutine so emitters never
// block on metrics or logging.
package progress
