package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MaxSegmentLength is the longest single path component accepted by ValidateSegment.
const MaxSegmentLength = 255

// ValidateSegment checks one virtual path component. Components must be non-empty,
// must not be "." or "..", must not contain a separator or a NUL byte and must fit
// in MaxSegmentLength bytes.
func ValidateSegment(segment string) error {
	switch {
	case segment == "":
		return fmt.Errorf("path segment cannot be empty")
	case segment == "." || segment == "..":
		return fmt.Errorf("path segment %q is not allowed", segment)
	case strings.ContainsRune(segment, '/'):
		return fmt.Errorf("path segment contains a separator: %q", segment)
	case strings.IndexByte(segment, 0) >= 0:
		return fmt.Errorf("path segment contains a NUL byte")
	case len(segment) > MaxSegmentLength:
		return fmt.Errorf("path segment exceeds %d bytes", MaxSegmentLength)
	}
	return nil
}

// SecureJoin joins path elements onto base and ensures the result stays within base.
// Unlike filepath.Join, this rejects results that escape base through "..".
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if fullPath == cleanBase {
		return fullPath, nil
	}
	prefix := cleanBase
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(fullPath, prefix) {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}

// RelativeTo returns target's components below base, or ok=false when target is
// not base or inside it.
func RelativeTo(base, target string) (segments []string, ok bool) {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(target))
	if err != nil {
		return nil, false
	}
	if rel == "." {
		return nil, true
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, false
	}
	return strings.Split(rel, "/"), true
}
