// Package metrics defines the observability contract of the scheduling core.
// Sinks record optimization runs, impact analyses and audit events. Optional
// capabilities are separate recorder interfaces so a sink implements only
// what it supports; MultiSink fans out to every sink that does. Concrete
// sinks (Prometheus, InfluxDB) live in infra/metrics and register themselves
// with the factory.
package metrics
