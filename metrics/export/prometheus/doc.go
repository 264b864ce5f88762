// Package prometheus exposes authflow metrics through a client_golang
// [prometheus.Collector].
//
// [NewExporter] reads [authflow.Client.MetricsSnapshot] on every scrape and
// emits one const metric per counter plus the sync latency histogram.
// Counter names are prefixed authflow_ and end in _total.
//
// # What this package must NOT do
//
//   - Register into the global default registry. Callers either mount
//     Handler (which owns a private registry) or register the Exporter
//     themselves.
//   - Mutate client state.
package prometheus
