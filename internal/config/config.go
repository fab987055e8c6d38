package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BOTARENA_ENGINE_TICK_INTERVAL_SECONDS.
const EnvPrefix = "BOTARENA"

// Load reads path and the files it includes (depth first, includer last),
// overlays BOTARENA_* environment variables, fills defaults for keys nobody
// set and validates the result. An empty path starts from Default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if strings.TrimSpace(path) != "" {
		files, err := includeOrder(path)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if err := mergeFile(v, file); err != nil {
				return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
			}
		}
	}
	envKeys := bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	set := make(keySet)
	markSettings("", v.AllSettings(), set)
	for _, k := range envKeys {
		set.mark(k)
	}
	cfg.applyDefaults(set)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

// bindEnv registers an env name for every leaf key of Config and returns the
// keys whose variable is present in the environment.
func bindEnv(v *viper.Viper) []string {
	var present []string
	for _, key := range configKeys(reflect.TypeOf(Config{}), "") {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, name)
		if _, ok := os.LookupEnv(name); ok {
			present = append(present, key)
		}
	}
	return present
}

func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("toml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, configKeys(f.Type, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

type includeWalk struct {
	done     map[string]bool
	visiting map[string]bool
	order    []string
}

func includeOrder(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &includeWalk{done: map[string]bool{}, visiting: map[string]bool{}}
	if err := w.visit(filepath.Clean(abs)); err != nil {
		return nil, err
	}
	return w.order, nil
}

func (w *includeWalk) visit(path string) error {
	if w.visiting[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if w.done[path] {
		return nil
	}
	w.visiting[path] = true
	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := w.visit(filepath.Clean(inc)); err != nil {
			return err
		}
	}
	delete(w.visiting, path)
	w.done[path] = true
	w.order = append(w.order, path)
	return nil
}

func readIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	var list []string
	if err := mapstructure.Decode(raw, &list); err != nil {
		return nil, fmt.Errorf("include must be a string array")
	}
	out := list[:0]
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func markSettings(prefix string, node any, set keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			key := strings.ToLower(strings.TrimSpace(k))
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			markSettings(key, child, set)
		}
	default:
		set.mark(prefix)
	}
}
