/*
Package metrics defines and registers the Prometheus series exposed by a
silo node: disk and replica counts, compaction cycle accounting, state
transition latency and failures, and raft leadership/apply latency for the
cluster map.

All metrics are package-level variables registered in init() via
prometheus.MustRegister, following the teacher's registration pattern.
Handler returns promhttp.Handler() for mounting under /metrics. Timer is
a small helper for recording operation duration to a histogram or
histogram vector.
*/
package metrics
