package store

import (
	"fmt"

	"github.com/kilianp07/rbtsched/core/factory"
)

var registry = factory.NewRegistry[Store]()

// Register adds a store factory under name.
func Register(name string, f factory.Factory[Store]) error {
	return registry.Register(name, f)
}

// New builds the store described by cfg. An empty type yields a MemoryStore.
func New(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return NewMemoryStore(), nil
	}
	return registry.Create(cfg)
}

type fileConf struct {
	Path            string `json:"path"`
	RotatingOptions `json:",squash"`
}

func decodePath(conf map[string]any) (fileConf, error) {
	var c fileConf
	if err := factory.Decode(conf, &c); err != nil {
		return c, err
	}
	if c.Path == "" {
		return c, fmt.Errorf("audit store: path is required")
	}
	return c, nil
}

func init() {
	_ = Register("memory", func(map[string]any) (Store, error) {
		return NewMemoryStore(), nil
	})
	_ = Register("jsonl", func(conf map[string]any) (Store, error) {
		c, err := decodePath(conf)
		if err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
	_ = Register("rotating", func(conf map[string]any) (Store, error) {
		c, err := decodePath(conf)
		if err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(c.Path, c.RotatingOptions)
	})
	_ = Register("sqlite", func(conf map[string]any) (Store, error) {
		c, err := decodePath(conf)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}
