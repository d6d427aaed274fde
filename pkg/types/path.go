package types

import (
	"fmt"
	"strings"
)

// Path is a virtual filesystem path. The zero value is the empty relative path.
type Path struct {
	Scheme    string
	Authority string
	Segments  []string
	Absolute  bool
}

// RootPath returns the unqualified root "/".
func RootPath() Path {
	return Path{Absolute: true}
}

// ParsePath parses "scheme://authority/a/b", "scheme:/a/b", "/a/b" or "a/b".
// Repeated separators collapse and "." segments are dropped. ".." pops the previous segment;
// in an absolute path it may not climb above the root. Leading ".." segments of a relative
// path are kept until the path is joined onto a working directory.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, fmt.Errorf("path cannot be empty")
	}

	var p Path
	rest := s
	if scheme, after, ok := splitScheme(s); ok {
		p.Scheme = scheme
		rest = after
		if strings.HasPrefix(rest, "//") {
			rest = rest[2:]
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				p.Authority = rest[:i]
				rest = rest[i:]
			} else {
				p.Authority = rest
				rest = "/"
			}
		}
		if rest == "" {
			rest = "/"
		}
		if !strings.HasPrefix(rest, "/") {
			return Path{}, fmt.Errorf("qualified path must be absolute: %s", s)
		}
	}

	p.Absolute = strings.HasPrefix(rest, "/")
	segments, err := normalize(nil, strings.Split(rest, "/"), p.Absolute)
	if err != nil {
		return Path{}, fmt.Errorf("%w: %s", err, s)
	}
	p.Segments = segments
	return p, nil
}

// MustParsePath is ParsePath for literals known to be valid. It panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// splitScheme recognizes an RFC 3986 scheme followed by ':' and then '/' or nothing.
// Any other colon belongs to a file name, so "notes:v2" stays a relative path.
func splitScheme(s string) (scheme, rest string, ok bool) {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return "", "", false
	}
	if !IsValidScheme(s[:i]) {
		return "", "", false
	}
	rest = s[i+1:]
	if rest != "" && rest[0] != '/' {
		return "", "", false
	}
	return s[:i], rest, true
}

// IsValidScheme reports whether s is a letter followed by letters, digits, '+', '-' or '.'.
func IsValidScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

func normalize(base, parts []string, absolute bool) ([]string, error) {
	out := append([]string(nil), base...)
	for _, part := range parts {
		switch part {
		case "", ".":
		case "..":
			switch {
			case len(out) > 0 && out[len(out)-1] != "..":
				out = out[:len(out)-1]
			case absolute:
				return nil, fmt.Errorf("path climbs above root")
			default:
				out = append(out, part)
			}
		default:
			out = append(out, part)
		}
	}
	return out, nil
}

// String renders the path. Qualified paths always carry "//" so the empty authority
// round-trips through ParsePath.
func (p Path) String() string {
	part := p.PathPart()
	if p.Scheme == "" {
		return part
	}
	return p.Scheme + "://" + p.Authority + part
}

// PathPart renders the path without scheme and authority.
func (p Path) PathPart() string {
	joined := strings.Join(p.Segments, "/")
	if p.Absolute {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// MarshalText encodes the path as String.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a path with ParsePath.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := ParsePath(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// IsRoot reports whether p is the absolute root.
func (p Path) IsRoot() bool {
	return p.Absolute && len(p.Segments) == 0
}

// Name returns the last segment, or "" for the root.
func (p Path) Name() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1]
}

// Parent returns the enclosing directory. The root and the empty relative path have none.
func (p Path) Parent() (Path, bool) {
	if len(p.Segments) == 0 {
		return Path{}, false
	}
	parent := p
	parent.Segments = append([]string(nil), p.Segments[:len(p.Segments)-1]...)
	return parent, true
}

// Child returns p extended by one segment. The name is not validated.
func (p Path) Child(name string) Path {
	child := p
	child.Segments = make([]string, len(p.Segments), len(p.Segments)+1)
	copy(child.Segments, p.Segments)
	child.Segments = append(child.Segments, name)
	return child
}

// Join resolves rel against p. An absolute rel is returned as is. Otherwise the segments of
// rel are appended to p, applying any leading "..".
func (p Path) Join(rel Path) (Path, error) {
	if rel.Absolute {
		return rel.clone(), nil
	}
	segments, err := normalize(p.Segments, rel.Segments, p.Absolute)
	if err != nil {
		return Path{}, fmt.Errorf("%w: %s + %s", err, p, rel.PathPart())
	}
	joined := p
	joined.Segments = segments
	return joined, nil
}

// Qualify returns p annotated with scheme and authority.
func (p Path) Qualify(scheme, authority string) Path {
	q := p.clone()
	q.Scheme = scheme
	q.Authority = authority
	return q
}

func (p Path) clone() Path {
	c := p
	c.Segments = append([]string(nil), p.Segments...)
	return c
}
