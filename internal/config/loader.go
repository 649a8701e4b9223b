package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const defaultKey = "$default"

// Paths helper for default/task files.
type Paths struct {
	BaseDir string // base directory, e.g., /opt/foraging/config
}

func (p Paths) DefaultPath() string {
	return filepath.Join(p.BaseDir, "tasks", "default.yaml")
}
func (p Paths) TaskPath(task string) string {
	return filepath.Join(p.BaseDir, "tasks", task+".yaml")
}

// Loader reads YAML task files and merges default → task.
type Loader struct {
	paths Paths

	mu    sync.RWMutex
	cache map[string]RawConfig // key: task name or "$default"
}

// NewLoader creates a config loader with the given base directory.
func NewLoader(baseDir string) *Loader {
	return &Loader{
		paths: Paths{BaseDir: baseDir},
		cache: make(map[string]RawConfig),
	}
}

// Paths returns the loader's file layout.
func (l *Loader) Paths() Paths { return l.paths }

// LoadMerged loads default.yaml (optional) and the task file (required) and
// merges them, the task winning. The result is cached until Invalidate.
func (l *Loader) LoadMerged(task string) (RawConfig, error) {
	l.mu.RLock()
	if cfg, ok := l.cache[task]; ok {
		l.mu.RUnlock()
		return cfg, nil
	}
	l.mu.RUnlock()

	defCfg, err := readYAML(l.paths.DefaultPath(), true)
	if err != nil {
		return RawConfig{}, fmt.Errorf("read default: %w", err)
	}
	taskCfg, err := readYAML(l.paths.TaskPath(task), false)
	if err != nil {
		return RawConfig{}, fmt.Errorf("read task %q: %w", task, err)
	}
	merged := mergeRaw(defCfg, taskCfg)

	l.mu.Lock()
	l.cache[defaultKey] = defCfg
	l.cache[task] = merged
	l.mu.Unlock()

	return merged, nil
}

// LoadTask loads, merges and resolves a task.
func (l *Loader) LoadTask(task string) (Task, error) {
	raw, err := l.LoadMerged(task)
	if err != nil {
		return Task{}, err
	}
	return Resolve(raw)
}

// Invalidate clears loader's cache. Call after hot-reload detects changes.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]RawConfig)
}

// LoadFile reads a single task file without merging.
func LoadFile(path string) (RawConfig, error) {
	return readYAML(path, false)
}

// Decode parses one task document. Unknown keys are rejected.
func Decode(r io.Reader) (RawConfig, error) {
	var cfg RawConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return RawConfig{}, nil
		}
		return RawConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// readYAML loads a YAML file into RawConfig. With optional set, a missing file
// returns a zero config and no error.
func readYAML(path string, optional bool) (RawConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return RawConfig{}, nil
		}
		return RawConfig{}, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return RawConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// mergeRaw overlays b on a: scalars where set, tick fields individually,
// defaults as a whole, patches by id.
func mergeRaw(a, b RawConfig) RawConfig {
	out := a

	if b.Version != "" {
		out.Version = b.Version
	}
	if b.Notes != "" {
		out.Notes = b.Notes
	}
	if b.Seed != nil {
		out.Seed = b.Seed
	}

	switch {
	case out.Tick == nil && b.Tick != nil:
		c := *b.Tick
		out.Tick = &c
	case out.Tick != nil && b.Tick != nil:
		c := *out.Tick
		if b.Tick.Delta != nil {
			c.Delta = b.Tick.Delta
		}
		if b.Tick.Steps != nil {
			c.Steps = b.Tick.Steps
		}
		out.Tick = &c
	}

	if b.Defaults != nil {
		out.Defaults = b.Defaults
	}

	if len(b.Patches) > 0 {
		patches := make(map[int]PatchConfig, len(a.Patches)+len(b.Patches))
		for id, pc := range a.Patches {
			patches[id] = pc
		}
		for id, pc := range b.Patches {
			patches[id] = pc
		}
		out.Patches = patches
	}
	return out
}
