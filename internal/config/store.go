package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// Snapshot is an immutable, versioned view of the configuration. Runs capture
// one snapshot at start and keep it for their whole lifetime.
type Snapshot struct {
	Version  int       `json:"version"`
	Config   Config    `json:"config"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Change records a single configuration field that differs between versions.
type Change struct {
	Version int       `json:"version"`
	Key     string    `json:"key"`
	Old     string    `json:"old"`
	New     string    `json:"new"`
	At      time.Time `json:"at"`
}

type Store struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	changes   []Change
	listeners []func(*Snapshot)
}

func NewStore(cfg *Config, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial config: %w", err)
	}

	s := &Store{path: path, logger: logger.Named("config")}
	s.current.Store(&Snapshot{Version: 1, Config: *cfg.Clone(), LoadedAt: time.Now().UTC()})
	return s, nil
}

func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// OnChange registers fn to be called with every new snapshot.
func (s *Store) OnChange(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Update validates cfg and, if any field differs, publishes it as a new
// version. Every changed field is logged and kept in the change history.
func (s *Store) Update(cfg *Config) (*Snapshot, []Change, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("rejected config update: %w", err)
	}

	s.mu.Lock()
	prev := s.current.Load()
	diff, err := Diff(&prev.Config, cfg)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	if len(diff) == 0 {
		s.mu.Unlock()
		return prev, nil, nil
	}

	next := &Snapshot{Version: prev.Version + 1, Config: *cfg.Clone(), LoadedAt: time.Now().UTC()}
	for i := range diff {
		diff[i].Version = next.Version
		diff[i].At = next.LoadedAt
		s.logger.Info("config value changed",
			zap.Int("version", next.Version),
			zap.String("key", diff[i].Key),
			zap.String("old", diff[i].Old),
			zap.String("new", diff[i].New),
		)
	}
	s.current.Store(next)
	s.changes = append(s.changes, diff...)
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next, diff, nil
}

// Reload re-reads the backing file and publishes it if it changed.
func (s *Store) Reload() (*Snapshot, error) {
	if s.path == "" {
		return s.Current(), nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	snap, _, err := s.Update(cfg)
	return snap, err
}

func (s *Store) Changes() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.changes)
}

// Watch reloads the configuration whenever the backing file is written. It
// blocks until ctx is done. Invalid files are logged and ignored, leaving the
// current snapshot in place.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("config store has no backing file")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files on save, so watch the directory rather than the file.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if _, err := s.Reload(); err != nil {
				s.logger.Warn("config reload failed", zap.String("path", s.path), zap.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Diff compares two configurations field by field using their TOML keys.
// Secrets are masked.
func Diff(a, b *Config) ([]Change, error) {
	fa, err := flatten(a)
	if err != nil {
		return nil, err
	}
	fb, err := flatten(b)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(fa)+len(fb))
	for k := range fa {
		keys = append(keys, k)
	}
	for k := range fb {
		if _, ok := fa[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var out []Change
	for _, k := range keys {
		if fa[k] == fb[k] {
			continue
		}
		c := Change{Key: k, Old: fa[k], New: fb[k]}
		if secret(k) {
			c.Old, c.New = mask(c.Old), mask(c.New)
		}
		out = append(out, c)
	}
	return out, nil
}

// Values returns every field keyed by its dotted TOML key, secrets masked.
func (c *Config) Values() (map[string]string, error) {
	out, err := flatten(c)
	if err != nil {
		return nil, err
	}
	for k, v := range out {
		if secret(k) {
			out[k] = mask(v)
		}
	}
	return out, nil
}

func flatten(cfg *Config) (map[string]string, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	out := make(map[string]string)
	walk("", tree, out)
	return out, nil
}

func walk(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			walk(key, child, out)
		}
	default:
		out[prefix] = fmt.Sprint(t)
	}
}

func secret(key string) bool {
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "password")
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return "***"
}
