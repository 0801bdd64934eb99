package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidName reports a chart file name that is not a plain basename
// with a supported image extension.
var ErrInvalidName = errors.New("invalid chart file name")

var validName = regexp.MustCompile(`^[A-Za-z0-9._-]+\.(png|svg|pdf|jpg)$`)

// SanitizeName reduces a requested path to its basename and validates it.
// Directory components are discarded, so "plots/x.png" and "x.png" name
// the same artifact.
func SanitizeName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || strings.HasPrefix(base, ".") || !validName.MatchString(base) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// Store writes chart artifacts into a single directory.
type Store struct {
	dir string
}

// NewStore creates the artifact directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plots directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save renders fig under "<prefix>_<basename>" and returns the stored name.
// Files are created exclusively, so an existing artifact is never replaced.
func (s *Store) Save(prefix, name string, fig *Figure) (string, error) {
	base, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	stored := base
	if prefix != "" {
		stored = prefix + "_" + base
	}
	format := strings.TrimPrefix(filepath.Ext(base), ".")

	wt, err := fig.plot.WriterTo(fig.width, fig.height, format)
	if err != nil {
		return "", fmt.Errorf("failed to render chart: %w", err)
	}

	path := filepath.Join(s.dir, stored)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create chart file: %w", err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write chart: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write chart: %w", err)
	}
	return stored, nil
}

// Path resolves a stored artifact name to a file path. Only plain
// basenames are accepted.
func (s *Store) Path(name string) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, err := SanitizeName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}
