// Package security holds filesystem guards for data written under the data
// directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxFileStem = 128

var (
	// ErrPathEscape indicates the resolved path would escape the trusted root directory.
	ErrPathEscape = errors.New("path escapes base directory")
	// ErrInvalidFileStem rejects identifiers that cannot be used as a file name.
	ErrInvalidFileStem = errors.New("invalid file name")
)

// ResolveWithin joins elems under base and fails if the result would land
// outside it. The returned path is absolute.
func ResolveWithin(base string, elems ...string) (string, error) {
	if base == "" {
		return "", errors.New("base directory is required")
	}

	root, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}
	target, err := filepath.Abs(filepath.Join(append([]string{root}, elems...)...))
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("relativize path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, target)
	}
	return target, nil
}

// ValidateFileStem accepts identifiers made of letters, digits, '-' and '_'
// such as UUIDs.
func ValidateFileStem(stem string) error {
	if stem == "" || len(stem) > maxFileStem {
		return fmt.Errorf("%w: %q", ErrInvalidFileStem, stem)
	}
	for _, c := range stem {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidFileStem, stem)
		}
	}
	return nil
}

// FileFor returns dir/stem+ext after validating stem.
func FileFor(dir, stem, ext string) (string, error) {
	if err := ValidateFileStem(stem); err != nil {
		return "", err
	}
	return ResolveWithin(dir, stem+ext)
}
