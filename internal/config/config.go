// Package config loads a federation description and builds the repository
// it describes.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/federation"
)

// ErrInvalid marks a configuration that fails validation.
var ErrInvalid = errors.New("invalid federation config")

// Source kinds.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
	KindFS     = "fs"
	KindMemFS  = "memfs"
	KindJSON   = "json"
)

var kinds = map[string]bool{
	KindMemory: true, KindSQLite: true, KindRedis: true,
	KindFS: true, KindMemFS: true, KindJSON: true,
}

// Load reads and validates the file at path. The format follows the
// extension: .hcl, .yaml/.yml or .json.
func Load(path string) (*api.Federation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse decodes data, choosing the format from filename's extension.
func Parse(filename string, data []byte) (*api.Federation, error) {
	var fed api.Federation
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".hcl":
		if err := hclsimple.Decode(filename, data, nil, &fed); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fed); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fed); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err := Validate(&fed); err != nil {
		return nil, err
	}
	return &fed, nil
}

// Validate checks the references between blocks and every rule.
func Validate(fed *api.Federation) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if fed.Name == "" {
		fail("name is required")
	}
	if _, err := duration(fed.NoContributionTTL); err != nil {
		fail("no_contribution_ttl: %v", err)
	}

	sources := make(map[string]api.Source, len(fed.Sources))
	for _, s := range fed.Sources {
		switch {
		case s.Name == "":
			fail("source without a name")
			continue
		case sources[s.Name].Name != "":
			fail("source %s is declared twice", s.Name)
		case !kinds[s.Kind]:
			fail("source %s: unknown kind %q", s.Name, s.Kind)
		}
		if _, err := duration(s.TTL); err != nil {
			fail("source %s: ttl: %v", s.Name, err)
		}
		if (s.Kind == KindSQLite || s.Kind == KindFS || s.Kind == KindJSON) && s.Path == "" {
			fail("source %s: kind %s needs a path", s.Name, s.Kind)
		}
		sources[s.Name] = s
	}

	if fed.Cache != nil {
		if _, ok := sources[fed.Cache.Source]; !ok {
			fail("cache: unknown source %q", fed.Cache.Source)
		} else if sources[fed.Cache.Source].Kind == KindJSON {
			fail("cache: source %s is read-only", fed.Cache.Source)
		}
		if _, err := federation.ParseRules(cacheRules(fed.Cache)...); err != nil {
			fail("cache: %v", err)
		}
	}

	if len(fed.Projections) == 0 {
		fail("at least one projection is required")
	}
	projected := make(map[string]bool, len(fed.Projections))
	for _, p := range fed.Projections {
		if _, ok := sources[p.Source]; !ok {
			fail("projection: unknown source %q", p.Source)
		}
		if projected[p.Source] {
			fail("projection: source %s is projected twice", p.Source)
		}
		projected[p.Source] = true
		if fed.Cache != nil && p.Source == fed.Cache.Source {
			fail("projection: source %s is also the cache", p.Source)
		}
		if len(p.Rules) == 0 {
			fail("projection %s: no rules", p.Source)
		}
		if _, err := federation.ParseRules(p.Rules...); err != nil {
			fail("projection %s: %v", p.Source, err)
		}
	}
	return errors.Join(errs...)
}

func cacheRules(c *api.Cache) []string {
	if len(c.Rules) == 0 {
		return []string{"/ => /"}
	}
	return c.Rules
}

// duration parses a Go duration; empty means zero.
func duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
