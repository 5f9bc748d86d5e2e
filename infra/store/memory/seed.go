package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
)

// Seed is a fixture document describing providers, teams and sessions.
type Seed struct {
	Providers []model.Provider `json:"providers" yaml:"providers"`
	Teams     []model.Team     `json:"teams" yaml:"teams"`
	Sessions  []model.Session  `json:"sessions" yaml:"sessions"`
}

// LoadSeed reads a JSON or YAML fixture file.
func LoadSeed(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeSeed(f, ext)
}

// DecodeSeed decodes a fixture document from r.
func DecodeSeed(r io.Reader, format string) (Seed, error) {
	var seed Seed
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&seed); err != nil && err != io.EOF {
			return seed, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&seed); err != nil {
			return seed, err
		}
	default:
		return seed, fmt.Errorf("unsupported seed format: %s", format)
	}
	if err := seed.Validate(); err != nil {
		return seed, err
	}
	return seed, nil
}

// Validate checks referential sanity of the fixture.
func (s Seed) Validate() error {
	for _, t := range s.Teams {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("team %s: %w", t.ID, err)
		}
	}
	for _, ss := range s.Sessions {
		if ss.ID == "" || ss.ClientID == "" || ss.RBTID == "" {
			return fmt.Errorf("session %q: id, client_id and rbt_id are required", ss.ID)
		}
		if !ss.Status.Valid() {
			return fmt.Errorf("session %s: invalid status %q", ss.ID, ss.Status)
		}
	}
	return nil
}

// Repositories builds in-memory repositories holding the fixture. Sessions
// without an end time get the fixed session duration.
func (s Seed) Repositories() store.Repositories {
	sessions := make([]model.Session, len(s.Sessions))
	for i, ss := range s.Sessions {
		if ss.End.IsZero() {
			ss.End = ss.Start.Add(model.SessionDuration)
		}
		sessions[i] = ss
	}
	return store.Repositories{
		Sessions:  NewSessionStore(sessions...),
		Teams:     NewTeamStore(s.Teams...),
		Providers: NewProviderStore(s.Providers...),
	}
}
