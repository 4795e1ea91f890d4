// Package api exposes the storage node's ops surface: process liveness,
// readiness (derived from disk availability), and a Prometheus /metrics
// endpoint. It is not a request-handling API — no RPCs, no mTLS, no leader
// forwarding. See SPEC_FULL.md's Non-goals: the admin/account API this
// module's domain would eventually need is explicitly out of scope, and
// this package exists only to give the process something to health-check.
package api
