package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `scheduling:
  constraints:
    timezone: "America/New_York"
    min_notice_hours: 24
  candidates:
    max_days: 21
    slot_step: 30m
  ranking:
    max_options: 3
  max_alternatives: 4
storage:
  backend: sqlite
  path: /var/lib/rbtsched/sched.db
  seed: fixtures.yaml
audit:
  type: rotating
  conf:
    path: audit/events.jsonl
    max_size_mb: 10
metrics:
  sinks:
    - type: prometheus
  prometheus_port: "9100"
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: "clinic/"
  qos: 1
sentry:
  dsn: ""
  environment: staging
http:
  addr: ":9000"
  token: secret
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", cfg.Scheduling.Constraints.Timezone)
	assert.Equal(t, 24.0, cfg.Scheduling.Constraints.MinNoticeHours)
	assert.Equal(t, "09:00", cfg.Scheduling.Constraints.DayStart)
	assert.Equal(t, 21, cfg.Scheduling.Candidates.MaxDays)
	assert.Equal(t, 30*time.Minute, cfg.Scheduling.Candidates.SlotStep)
	assert.Equal(t, 3, cfg.Scheduling.Ranking.MaxOptions)
	assert.Equal(t, 4, cfg.Scheduling.MaxAlternatives)
	assert.Equal(t, 90, cfg.Scheduling.MaxUnavailableDays)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "fixtures.yaml", cfg.Storage.Seed)
	assert.Equal(t, "rotating", cfg.Audit.Type)
	assert.Equal(t, "audit/events.jsonl", cfg.Audit.Conf["path"])

	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "prometheus", cfg.Metrics.Sinks[0].Type)
	assert.Equal(t, "9100", cfg.Metrics.PrometheusPort)

	assert.Equal(t, "clinic", cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 3, cfg.MQTT.MaxRetries)
	assert.Equal(t, "staging", cfg.Sentry.Environment)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "secret", cfg.HTTP.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("K_SCHEDULING__CONSTRAINTS__MIN_NOTICE_HOURS", "48")
	t.Setenv("K_HTTP__ADDR", ":7000")
	path := writeFile(t, "config.json", `{"storage": {"backend": "memory"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 48.0, cfg.Scheduling.Constraints.MinNoticeHours)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Audit.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Empty(t, cfg.MQTT.TopicPrefix, "mqtt defaults only apply when a broker is set")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"storage":  "storage:\n  backend: postgres\n",
		"sqlite":   "storage:\n  backend: sqlite\n",
		"timezone": "scheduling:\n  constraints:\n    timezone: Mars/Olympus\n",
		"mqtt":     "mqtt:\n  broker: tcp://x:1883\n  qos: 5\n",
		"logging":  "logging:\n  level: loud\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeFile(t, "config.toml", ""))
	assert.Error(t, err)
}
