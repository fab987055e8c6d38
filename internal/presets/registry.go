// Package presets loads per-kind strategy parameter presets from YAML, keeps
// them fresh on file change and validates caller overrides against each
// preset's JSON schema.
package presets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"botarena/internal/logger"
	"botarena/internal/strategy"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Preset is the file-level configuration of one strategy kind.
type Preset struct {
	Kind        strategy.Kind  `yaml:"-"`
	Description string         `yaml:"description"`
	Params      map[string]any `yaml:"params"`
	Schema      map[string]any `yaml:"schema"`

	schemaCompiled *jsonschema.Schema
}

type FileConfig struct {
	Presets map[string]Preset `yaml:"presets"`
}

type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[strategy.Kind]Preset
}

// ChangeListener runs after every successful reload.
type ChangeListener func(Snapshot)

type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads path and watches it. An empty path gives a registry
// with no presets, so only built-in defaults and overrides apply.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		r.snapshot = Snapshot{LoadedAt: time.Now(), Presets: map[strategy.Kind]Preset{}}
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy presets failed: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("Presets: reload %s failed: %v", evt.Name, err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

func (r *Registry) Preset(kind strategy.Kind) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Presets[kind]
	return p, ok
}

// Resolve validates overrides against the kind's schema and returns the
// effective params: built-in defaults, then the preset file, then overrides.
func (r *Registry) Resolve(kind strategy.Kind, overrides map[string]any) (strategy.Params, error) {
	preset, _ := r.Preset(kind)
	if err := preset.Validate(overrides); err != nil {
		return nil, fmt.Errorf("%w: %s overrides: %v", strategy.ErrInvalidParams, kind, err)
	}
	return strategy.Resolve(kind, preset.Params, overrides)
}

func (r *Registry) reload() error {
	cfg, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[strategy.Kind]Preset, len(cfg.Presets))
	for name, p := range cfg.Presets {
		kind, err := strategy.ParseKind(name)
		if err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
		norm, err := normalizePreset(kind, p)
		if err != nil {
			return err
		}
		presets[kind] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
	logger.Infof("Presets: loaded %d strategy presets from %s", len(presets), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("preset listener")
			cb(snap)
		}(fn)
	}
}

// normalizePreset compiles the schema and checks that the preset params
// themselves produce a valid strategy.
func normalizePreset(kind strategy.Kind, p Preset) (Preset, error) {
	p.Kind = kind
	p.Description = strings.TrimSpace(p.Description)
	if len(p.Schema) > 0 {
		compiled, err := compileSchema(p.Schema)
		if err != nil {
			return Preset{}, fmt.Errorf("preset %s schema: %w", kind, err)
		}
		p.schemaCompiled = compiled
	}
	if err := p.Validate(p.Params); err != nil {
		return Preset{}, fmt.Errorf("preset %s params: %w", kind, err)
	}
	if _, err := strategy.Resolve(kind, p.Params); err != nil {
		return Preset{}, fmt.Errorf("preset %s: %w", kind, err)
	}
	return p, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Presets:  make(map[strategy.Kind]Preset, len(src.Presets)),
	}
	for k, p := range src.Presets {
		dst.Presets[k] = p
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func compileSchema(data map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func readPresetFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read strategy presets failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse strategy presets failed: %w", err)
	}
	return cfg, nil
}

var errNotObject = errors.New("params must be an object")

// Validate checks params against the preset schema. Nil params always pass.
func (p Preset) Validate(params map[string]any) error {
	if p.schemaCompiled == nil || params == nil {
		return nil
	}
	sanitized, ok := sanitizeParams(params).(map[string]any)
	if !ok {
		return errNotObject
	}
	return p.schemaCompiled.Validate(sanitized)
}

// sanitizeParams converts numeric strings to float64 and normalizes the
// integer types YAML and JSON decoders produce so the schema sees numbers.
func sanitizeParams(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[strings.ToLower(strings.TrimSpace(k))] = sanitizeParams(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = sanitizeParams(child)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return val
		}
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			return num
		}
		return val
	default:
		return val
	}
}
