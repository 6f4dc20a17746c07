// Package store keeps the most recent rectified cards on disk.
package store

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

const (
	prefix     = "corrected_"
	ext        = ".jpg"
	timeLayout = "20060102_150405"
)

var (
	ErrNotFound    = errors.New("result not found")
	ErrInvalidName = errors.New("invalid result name")
)

// Config controls where and how many results are kept.
type Config struct {
	Dir       string `mapstructure:"dir" yaml:"dir" json:"dir"`
	MaxImages int    `mapstructure:"max_images" yaml:"max_images" json:"max_images"`
	Quality   int    `mapstructure:"quality" yaml:"quality" json:"quality"`
}

// DefaultConfig keeps the last 30 results in ./corrected.
func DefaultConfig() Config {
	return Config{Dir: "corrected", MaxImages: 30, Quality: utils.StoreQuality}
}

// Validate checks cfg.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return errors.New("store dir must not be empty")
	}
	if c.MaxImages < 0 {
		return fmt.Errorf("max images must be non-negative, got %d", c.MaxImages)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be in [1,100], got %d", c.Quality)
	}
	return nil
}

// Entry describes one stored result.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store writes rectified images as JPEG files and prunes old ones. A
// MaxImages of 0 disables pruning.
type Store struct {
	cfg Config
	mu  sync.Mutex
	now func() time.Time
}

// New creates the store directory if needed.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{cfg: cfg, now: time.Now}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.cfg.Dir }

// FileName formats the result name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("%s%s_%06d%s", prefix, t.Format(timeLayout), t.Nanosecond()/1000, ext)
}

// ValidName reports whether name looks like a file this store wrote.
func ValidName(name string) bool {
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return false
	}
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext)
}

// Save encodes img and prunes the directory down to MaxImages.
func (s *Store) Save(img image.Image) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, name, err := s.create()
	if err != nil {
		return Entry{}, err
	}
	path := filepath.Join(s.cfg.Dir, name)
	if err := utils.EncodeImage(f, img, utils.FormatJPEG, s.cfg.Quality); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return Entry{}, fmt.Errorf("save %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Entry{}, fmt.Errorf("save %s: %w", name, err)
	}

	if _, err := s.prune(); err != nil {
		slog.Warn("Failed to prune result store", "dir", s.cfg.Dir, "error", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// create opens a fresh file, bumping the timestamp by a microsecond on clash.
func (s *Store) create() (*os.File, string, error) {
	t := s.now()
	for range 100 {
		name := FileName(t)
		f, err := os.OpenFile(filepath.Join(s.cfg.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create result file: %w", err)
		}
		t = t.Add(time.Microsecond)
	}
	return nil, "", errors.New("create result file: too many name collisions")
}

// List returns stored results, newest first.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !ValidName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Name > out[j].Name
		}
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}

// Open returns a reader for a stored result. The caller closes it.
func (s *Store) Open(name string) (*os.File, Entry, error) {
	if !ValidName(name) {
		return nil, Entry{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	f, err := os.Open(filepath.Join(s.cfg.Dir, name)) //nolint:gosec // G304: name validated above
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, Entry{}, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Entry{}, err
	}
	return f, Entry{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Prune deletes the oldest results beyond MaxImages and returns how many
// were removed.
func (s *Store) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune()
}

func (s *Store) prune() (int, error) {
	if s.cfg.MaxImages == 0 {
		return 0, nil
	}
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries[min(len(entries), s.cfg.MaxImages):] {
		if err := os.Remove(filepath.Join(s.cfg.Dir, e.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		slog.Debug("Pruned result store", "dir", s.cfg.Dir, "removed", removed)
	}
	return removed, nil
}
