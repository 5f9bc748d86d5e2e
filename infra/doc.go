// Package infra contains the adapters behind the core contracts: loggers,
// metrics sinks, error monitoring, the MQTT bridge and repositories. These
// packages depend on core interfaces and never the other way around.
package infra
