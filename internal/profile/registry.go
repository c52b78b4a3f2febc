// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package profile

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/logging"
)

// Registry holds the validated profiles and mirrors them into the sources
// table. Reads are lock-free after LoadDir; Reload swaps the whole set.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*Profile)}
}

// LoadDir reads every *.yaml / *.yml file under dir, validates the profiles
// and replaces the registry contents. A single invalid profile fails the
// whole load so a bad deploy cannot silently drop sources.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read profiles dir %s: %w", dir, err)
	}

	loaded := make(map[string]*Profile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			return err
		}
		if _, dup := loaded[p.ID]; dup {
			return fmt.Errorf("duplicate profile id %q in %s", p.ID, path)
		}
		loaded[p.ID] = p
	}

	r.mu.Lock()
	r.profiles = loaded
	r.mu.Unlock()

	logging.Info().Int("profiles", len(loaded)).Str("dir", dir).Msg("Source profiles loaded")
	return nil
}

func loadFile(path string) (*Profile, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	p := &Profile{
		Enabled:       true,
		Tier:          3,
		Limits:        DefaultLimits(),
		Observability: DefaultObservability(),
	}
	if err := k.Unmarshal("", p); err != nil {
		return nil, fmt.Errorf("unmarshal profile %s: %w", path, err)
	}
	if p.Domain == "" {
		if u, err := url.Parse(p.URL); err == nil {
			p.Domain = u.Hostname()
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Get returns a profile by source id.
func (r *Registry) Get(id string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// All returns the enabled profiles sorted by tier then id, the order the
// scheduler walks them in.
func (r *Registry) All() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of registered profiles, enabled or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// Sync mirrors the registry into the sources table.
func (r *Registry) Sync(ctx context.Context, db *database.DB) error {
	now := time.Now().UTC()
	r.mu.RLock()
	profiles := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p)
	}
	r.mu.RUnlock()

	for _, p := range profiles {
		if err := db.UpsertSource(ctx, p.Source(now)); err != nil {
			return fmt.Errorf("sync profile %s: %w", p.ID, err)
		}
	}
	return nil
}
