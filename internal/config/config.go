// Package config loads and validates capture configuration.
//
// Configuration is authored in YAML and checked against an embedded CUE
// schema, so constraint violations (sample rate out of range, zero batch
// size) are caught at load time rather than surfacing as silent capture
// misbehavior.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the capture configuration surface.
//
// Recording options are opaque: they are forwarded unmodified to the
// external recording engine and never interpreted here.
type Config struct {
	Enabled           bool           `yaml:"enabled" json:"enabled"`
	BasePath          string         `yaml:"basePath" json:"basePath"`
	Domain            string         `yaml:"domain" json:"domain"`
	FlushIntervalMs   int            `yaml:"flushIntervalMs" json:"flushIntervalMs"`
	BatchSize         int            `yaml:"batchSize" json:"batchSize"`
	SessionSampleRate float64        `yaml:"sessionSampleRate" json:"sessionSampleRate"`
	ExcludedPaths     []string       `yaml:"excludedPaths" json:"excludedPaths"`
	Recording         map[string]any `yaml:"recording,omitempty" json:"recording,omitempty"`
}

// Default returns a config with production defaults applied.
// BasePath and Domain have no sensible defaults and must be set.
func Default() Config {
	return Config{
		Enabled:           true,
		FlushIntervalMs:   5000,
		BatchSize:         50,
		SessionSampleRate: 1.0,
		ExcludedPaths:     []string{},
	}
}

// FlushInterval returns the flush cadence as a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// Load reads a YAML config file, applies defaults for absent fields, and
// validates the result against the embedded schema.
func Load(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ExcludedPaths == nil {
		cfg.ExcludedPaths = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate unifies the config against the embedded CUE schema and returns
// the first constraint violation, if any.
func (c Config) Validate() error {
	cctx := cuecontext.New()

	schema := cctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("schema missing #Config definition")
	}

	// JSON is a subset of CUE, so the marshaled config compiles directly
	// into a value we can unify with the definition.
	normalized := c
	if normalized.ExcludedPaths == nil {
		normalized.ExcludedPaths = []string{}
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	val := cctx.CompileBytes(data, cue.Filename("config"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// PathExcluded reports whether the request path matches any excluded-path
// pattern. Patterns use path.Match syntax; a trailing "/*" additionally
// excludes nested paths ("/admin/*" covers "/admin/a/b").
func (c Config) PathExcluded(requestPath string) bool {
	for _, pattern := range c.ExcludedPaths {
		if ok, err := path.Match(pattern, requestPath); err == nil && ok {
			return true
		}
		if strings.HasSuffix(pattern, "/*") {
			prefix := strings.TrimSuffix(pattern, "/*")
			if requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/") {
				return true
			}
		}
	}
	return false
}
