// Package sinks holds progress consumers: structured logs and Prometheus
// collectors.
package sinks
