package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Package sources contains pluggable news-source configs (YAML/JSON) and
// the fetchers that poll them.

const defaultRequestDelayMs = 500

// Source is a single news-source entry declared in config files.
type Source struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Platform       string         `json:"platform" yaml:"platform"`
	Type           string         `json:"type" yaml:"type"`
	SourceURL      string         `json:"source_url" yaml:"source_url"`
	Category       string         `json:"category" yaml:"category"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	Enrich         bool           `json:"enrich" yaml:"enrich"`
	Config         map[string]any `json:"config" yaml:"config"`
}

// RequestDelay returns the per-request throttle for this source.
func (s Source) RequestDelay() time.Duration {
	delay := s.RequestDelayMs
	if delay <= 0 {
		delay = defaultRequestDelayMs
	}
	return time.Duration(delay) * time.Millisecond
}

type configFile struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// Registry materializes source definitions loaded from config files.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
	idx     map[string]Source
}

// LoadRegistry loads the source registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	fileReg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(fileReg.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	reg := &Registry{
		sources: make([]Source, len(fileReg.Sources)),
		idx:     make(map[string]Source, len(fileReg.Sources)),
	}

	for i := range fileReg.Sources {
		cfg := sanitizeSource(fileReg.Sources[i])
		if err := validateSource(cfg); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", cfg.ID)
		}
		reg.sources[i] = cfg
		reg.idx[cfg.ID] = cfg
	}

	return reg, nil
}

// parseRegistry attempts to decode the sources file content.
func parseRegistry(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg configFile
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}

	return configFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

// sanitizeSource trims and normalizes the source config fields.
func sanitizeSource(cfg Source) Source {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Platform = strings.TrimSpace(cfg.Platform)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	cfg.SourceURL = strings.TrimSpace(cfg.SourceURL)
	cfg.Category = strings.TrimSpace(cfg.Category)
	if cfg.Platform == "" {
		cfg.Platform = strings.ToUpper(cfg.ID)
	}
	return cfg
}

// validateSource checks that required fields are present.
func validateSource(cfg Source) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type is required for source %q", cfg.ID)
	}
	if cfg.SourceURL == "" {
		return fmt.Errorf("source_url is required for source %q", cfg.ID)
	}
	return nil
}

// ByID returns the source config by id.
func (r *Registry) ByID(id string) (Source, bool) {
	if r == nil {
		return Source{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Source{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[id]
	return cfg, ok
}

// All returns all configured sources.
func (r *Registry) All() []Source {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}
