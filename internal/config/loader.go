package config

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
)

//go:embed settings/*.toml settings/prompts/*.toml
var defaultsFS embed.FS

const (
	// LocalSettingsFile is looked up in the working directory and, when
	// config.use_repo_settings_file is set, at the root of the PR repository.
	LocalSettingsFile = ".pr_insight.toml"
	configEnvVar      = "PR_INSIGHT_CONFIG"
)

// LoadOptions controls where settings are read from besides the embedded
// defaults. Environ defaults to os.Environ().
type LoadOptions struct {
	ConfigFile string
	Environ    []string
	Logger     *slog.Logger
}

// Prompt is a pair of text/template sources for one model call.
type Prompt struct {
	System string
	User   string
}

// Default returns the embedded defaults only.
func Default() (*Settings, error) {
	raw, err := loadDefaults()
	if err != nil {
		return nil, err
	}
	s := &Settings{raw: raw}
	if _, err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load merges defaults, the settings file and the environment.
func Load(opts LoadOptions) (*Settings, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	raw, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv(configEnvVar)
	}
	if path == "" {
		if _, err := os.Stat(LocalSettingsFile); err == nil {
			path = LocalSettingsFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, apperrors.ErrInvalidSettings.WithError(err).WithContext("path", path)
		}
		var file map[string]any
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, apperrors.ErrInvalidSettings.WithError(err).WithContext("path", path)
		}
		mergeMaps(raw, file)
		log.Debug("settings file loaded", "path", path)
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	applyEnv(raw, environ)

	s := &Settings{raw: raw}
	undecoded, err := s.rebuild()
	if err != nil {
		return nil, err
	}
	for _, key := range undecoded {
		log.Warn("unknown setting ignored", "key", key)
	}
	return s, nil
}

func loadDefaults() (map[string]any, error) {
	raw := map[string]any{}
	err := fs.WalkDir(defaultsFS, "settings", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".toml") {
			return err
		}
		data, err := defaultsFS.ReadFile(path)
		if err != nil {
			return err
		}
		var part map[string]any
		if _, err := toml.Decode(string(data), &part); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		mergeMaps(raw, part)
		return nil
	})
	if err != nil {
		return nil, apperrors.ErrInvalidSettings.WithError(err)
	}
	return raw, nil
}

// rebuild re-decodes the typed sections from the raw map and returns the
// keys that did not map to any typed field.
func (s *Settings) rebuild() ([]string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s.raw); err != nil {
		return nil, apperrors.ErrInvalidSettings.WithError(err)
	}

	var typed Settings
	md, err := toml.Decode(buf.String(), &typed)
	if err != nil {
		return nil, apperrors.ErrInvalidSettings.WithError(err)
	}
	raw := s.raw
	*s = typed
	s.raw = raw

	var undecoded []string
	for _, key := range md.Undecoded() {
		if len(key) > 0 && isPromptSection(key[0]) {
			continue
		}
		undecoded = append(undecoded, key.String())
	}
	return undecoded, nil
}

// Clone returns an independent copy so a request can apply its own overrides.
func (s *Settings) Clone() *Settings {
	c := *s
	c.raw = deepCopyMap(s.raw)
	// the raw map decoded before, rebuilding only detaches the slices and maps
	_, _ = c.rebuild()
	return &c
}

// Set assigns a dotted key such as "pr_reviewer.num_code_suggestions".
// The value is interpreted as a TOML literal unless the current value of
// the key is a string.
func (s *Settings) Set(key, value string) error {
	parts := splitKey(key)
	if len(parts) < 2 {
		return apperrors.ErrInvalidSettings.WithContext("key", key)
	}

	section := s.raw
	for _, p := range parts[:len(parts)-1] {
		next, ok := section[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			section[p] = next
		}
		section = next
	}
	leaf := parts[len(parts)-1]
	prev, existed := section[leaf]
	section[leaf] = coerce(prev, value)

	if _, err := s.rebuild(); err != nil {
		if existed {
			section[leaf] = prev
		} else {
			delete(section, leaf)
		}
		_, _ = s.rebuild()
		return apperrors.ErrInvalidSettings.WithError(err).WithContext("key", key)
	}
	return nil
}

// Get returns the raw value for a dotted key.
func (s *Settings) Get(key string) (any, bool) {
	var cur any = s.raw
	for _, p := range splitKey(key) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// MergeTOML applies a settings document on top of the current values. Keys
// matching a forbidden argument are dropped.
func (s *Settings) MergeTOML(data []byte) ([]string, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, apperrors.ErrInvalidSettings.WithError(err)
	}
	var dropped []string
	for section, v := range doc {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for key := range m {
			if IsForbidden("--" + section + "." + key) {
				dropped = append(dropped, section+"."+key)
				delete(m, key)
			}
		}
	}
	sort.Strings(dropped)
	mergeMaps(s.raw, doc)
	if _, err := s.rebuild(); err != nil {
		return dropped, err
	}
	return dropped, nil
}

// Prompt returns the system and user templates of a prompt section.
func (s *Settings) Prompt(name string) (Prompt, error) {
	sec, ok := s.raw[name].(map[string]any)
	if !ok {
		return Prompt{}, apperrors.ErrInvalidSettings.WithContext("prompt", name)
	}
	system, _ := sec["system"].(string)
	user, _ := sec["user"].(string)
	if system == "" && user == "" {
		return Prompt{}, apperrors.ErrInvalidSettings.WithContext("prompt", name)
	}
	return Prompt{System: system, User: user}, nil
}

// Sections lists the top-level section names in sorted order.
func (s *Settings) Sections() []string {
	names := make([]string, 0, len(s.raw))
	for k, v := range s.raw {
		if _, ok := v.(map[string]any); ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Section returns a copy of one top-level section.
func (s *Settings) Section(name string) map[string]any {
	m, _ := s.raw[name].(map[string]any)
	return deepCopyMap(m)
}

// CustomLabelNames returns the configured label names in sorted order.
func (s *Settings) CustomLabelNames() []string {
	names := make([]string, 0, len(s.CustomLabels))
	for name := range s.CustomLabels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isPromptSection(name string) bool {
	return strings.HasSuffix(name, "_prompt") || strings.HasSuffix(name, "_prompts")
}

func splitKey(key string) []string {
	key = strings.ReplaceAll(key, "__", ".")
	parts := strings.Split(key, ".")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		out[0] = strings.ToLower(out[0])
	}
	if len(out) == 2 {
		out[1] = strings.ToLower(out[1])
	}
	return out
}

// coerce converts a textual override into the type of the value it replaces.
func coerce(prev any, value string) any {
	if _, isString := prev.(string); isString {
		return value
	}
	var doc struct {
		V any `toml:"v"`
	}
	if _, err := toml.Decode("v = "+value, &doc); err == nil && doc.V != nil {
		if n, ok := doc.V.(int64); ok {
			if _, isFloat := prev.(float64); isFloat {
				return float64(n)
			}
		}
		return doc.V
	}
	return value
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				mergeMaps(dm, sm)
				continue
			}
			dst[k] = deepCopyMap(sm)
			continue
		}
		dst[k] = v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = deepCopyMap(val)
		case []any:
			cp := make([]any, len(val))
			copy(cp, val)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
