// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file loads the catalog seed (episodes, maps,
// channels) from YAML and applies it with create-if-absent semantics.
package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/domain"
)

// Seed is the on-disk catalog description.
//
//	episodes:
//	  - number: 10
//	    name: Harbor Run
//	    maps:
//	      - {name: Docks, level: 40, favourite: true}
//	channels:
//	  - {id: 1, name: Channel 1}
type Seed struct {
	Episodes []SeedEpisode `yaml:"episodes"`
	Channels []SeedChannel `yaml:"channels"`
}

// SeedEpisode is one episode with its maps.
type SeedEpisode struct {
	Number int       `yaml:"number"`
	Name   string    `yaml:"name"`
	Maps   []SeedMap `yaml:"maps"`
}

// SeedMap is one map entry under an episode.
type SeedMap struct {
	Name      string `yaml:"name"`
	Level     int    `yaml:"level"`
	Favourite bool   `yaml:"favourite"`
}

// SeedChannel is one channel entry.
type SeedChannel struct {
	ID   uint   `yaml:"id"`
	Name string `yaml:"name"`
}

// SeedResult counts the rows inserted by ApplySeed.
type SeedResult struct {
	Episodes int
	Maps     int
	Channels int
}

// LoadSeed reads and validates a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Seed
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks names are present and natural keys are unique.
func (s *Seed) Validate() error {
	episodes := map[int]bool{}
	for _, e := range s.Episodes {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("episode %d: empty name", e.Number)
		}
		if episodes[e.Number] {
			return fmt.Errorf("episode %d: duplicate number", e.Number)
		}
		episodes[e.Number] = true
		maps := map[string]bool{}
		for _, m := range e.Maps {
			if strings.TrimSpace(m.Name) == "" {
				return fmt.Errorf("episode %d: map with empty name", e.Number)
			}
			if maps[m.Name] {
				return fmt.Errorf("episode %d: duplicate map %q", e.Number, m.Name)
			}
			maps[m.Name] = true
		}
	}
	channels := map[uint]bool{}
	for _, c := range s.Channels {
		if c.ID == 0 {
			return fmt.Errorf("channel %q: id must be positive", c.Name)
		}
		if channels[c.ID] {
			return fmt.Errorf("channel %d: duplicate id", c.ID)
		}
		channels[c.ID] = true
	}
	return nil
}

// ApplySeed inserts every missing catalog row in one transaction. Existing
// rows are left untouched, so applying the same seed twice is a no-op.
func ApplySeed(ctx context.Context, db *gorm.DB, s *Seed) (SeedResult, error) {
	var res SeedResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range s.Episodes {
			_, created, err := EnsureEpisode(ctx, tx, e.Number, e.Name)
			if err != nil {
				return fmt.Errorf("episode %d: %w", e.Number, err)
			}
			if created {
				res.Episodes++
			}
			for _, m := range e.Maps {
				_, created, err := EnsureMap(ctx, tx, domain.Map{
					EpisodeNumber: e.Number,
					Name:          m.Name,
					Level:         m.Level,
					Favourite:     m.Favourite,
				})
				if err != nil {
					return fmt.Errorf("map %q: %w", m.Name, err)
				}
				if created {
					res.Maps++
				}
			}
		}
		for _, c := range s.Channels {
			_, created, err := EnsureChannel(ctx, tx, c.ID, c.Name)
			if err != nil {
				return fmt.Errorf("channel %d: %w", c.ID, err)
			}
			if created {
				res.Channels++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return res, nil
}
