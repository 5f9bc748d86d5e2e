package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store struct {
	path    string
	maxSize int
	flush   time.Duration
}

type storeConf struct {
	Path    string        `json:"path"`
	MaxSize int           `json:"max_size_mb"`
	Flush   time.Duration `json:"flush_interval"`
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[*store]()
	require.NoError(t, reg.Register("jsonl", func(conf map[string]any) (*store, error) {
		var c storeConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &store{path: c.Path, maxSize: c.MaxSize, flush: c.Flush}, nil
	}))
	inst, err := reg.Create(ModuleConfig{Type: "jsonl", Conf: map[string]any{
		"path": "audit.jsonl", "max_size_mb": "5", "flush_interval": "2s",
	}})
	require.NoError(t, err)
	assert.Equal(t, "audit.jsonl", inst.path)
	assert.Equal(t, 5, inst.maxSize)
	assert.Equal(t, 2*time.Second, inst.flush)
	assert.True(t, reg.Has("jsonl"))
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[int]()
	require.NoError(t, reg.Register("x", func(map[string]any) (int, error) { return 1, nil }))
	assert.Error(t, reg.Register("x", func(map[string]any) (int, error) { return 2, nil }))
	assert.Error(t, reg.Register("y", nil))

	_, err := reg.Create(ModuleConfig{Type: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[x]")
	assert.Equal(t, []string{"x"}, reg.Names())
}
