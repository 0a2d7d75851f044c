package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path does not live under the storage root.
var ErrOutsideRoot = errors.New("path is outside the storage root")

// Resolver converts between root-relative paths (the persisted form) and
// absolute filesystem paths. Persisted paths always use forward slashes.
type Resolver struct {
	root string
}

// NewResolver anchors a resolver at root, made absolute against the
// working directory.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %q: %w", root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute storage root.
func (r *Resolver) Root() string { return r.root }

// Resolve joins a root-relative path onto the root. It reports false for
// absolute inputs and for relative paths that climb out of the root.
func (r *Resolver) Resolve(rel string) (string, bool) {
	if rel == "" || filepath.IsAbs(rel) || filepath.IsAbs(filepath.FromSlash(rel)) {
		return "", false
	}
	abs := filepath.Join(r.root, filepath.FromSlash(rel))
	if !r.IsInsideRoot(abs) {
		return "", false
	}
	return abs, true
}

// ToAbsolute resolves a stored path. Relative values are taken as
// root-relative; absolute values (legacy rows) are returned cleaned.
func (r *Resolver) ToAbsolute(relOrLegacy string) string {
	if relOrLegacy == "" {
		return ""
	}
	p := filepath.FromSlash(relOrLegacy)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.root, p)
}

// ToRelative returns abs relative to the root in slash form.
func (r *Resolver) ToRelative(abs string) (string, error) {
	if !r.IsInsideRoot(abs) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, abs)
	}
	rel, err := filepath.Rel(r.root, filepath.Clean(abs))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, abs)
	}
	return filepath.ToSlash(rel), nil
}

// IsInsideRoot reports whether abs is the root or below it.
func (r *Resolver) IsInsideRoot(abs string) bool {
	if !filepath.IsAbs(abs) {
		return false
	}
	rel, err := filepath.Rel(r.root, filepath.Clean(abs))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// LegacyCandidates lists the absolute paths an old stored value may refer
// to. Earlier layouts persisted absolute paths, or paths relative to the
// process working directory.
func LegacyCandidates(stored string) []string {
	if stored == "" {
		return nil
	}
	p := filepath.FromSlash(stored)
	if filepath.IsAbs(p) {
		return []string{filepath.Clean(p)}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil
	}
	return []string{abs}
}

// Locate finds the file a stored local path refers to: the root-relative
// reading first, then the legacy readings. It reports false when none exists.
func (r *Resolver) Locate(stored string) (string, bool) {
	if abs, ok := r.Resolve(stored); ok && fileExists(abs) {
		return abs, true
	}
	for _, candidate := range LegacyCandidates(stored) {
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}
