// SPDX-License-Identifier: MPL-2.0

// Package metrics records build observations.
//
// Components receive a Recorder and default to NoopRecorder, so call sites
// never check for nil. The CLI swaps in a PrometheusRecorder when a metrics
// textfile is configured and writes the registry once the command finishes,
// in the node-exporter textfile format.
package metrics
