// Package health provides consecutive-failure hysteresis tracking: a
// Status accumulates successes/failures against a Config's retry threshold
// so a single transient error does not flip a disk's reported availability.
//
// Originally built around pluggable HTTP/TCP/exec container probes; those
// checker implementations are gone (no container workload exists here), but
// the underlying Status/Config hysteresis is reused unchanged by
// pkg/diskmanager to track per-disk scan health.
package health
