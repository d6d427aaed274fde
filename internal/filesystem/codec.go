package filesystem

import (
	"fmt"
	"strings"

	"github.com/diskvfs/diskvfs/internal/config"
)

// OwnerCodec parses the composite owner string a platform reports for a file.
type OwnerCodec interface {
	Name() string
	// Split returns the group-ish prefix and the owner name encoded in raw.
	Split(raw string) (prefix, name string, err error)
	// Group derives the group recorded in a status snapshot.
	Group(raw, prefix string, isGroup func(string) bool) string
	// Domain returns the scoping token of a principal name.
	Domain(principalName string) string
}

// NoneGroupSuffix marks a group derived from an owner prefix that did not resolve.
const NoneGroupSuffix = `\None`

// ACLCodec handles DOMAIN\NAME owner strings.
type ACLCodec struct{}

func (ACLCodec) Name() string { return config.OwnerEncodingACL }

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '\\' })
}

func (ACLCodec) Split(raw string) (string, string, error) {
	t := tokens(raw)
	if len(t) < 2 {
		return "", "", fmt.Errorf("malformed owner %q: expected DOMAIN\\NAME", raw)
	}
	return t[0], t[1], nil
}

// Group keeps raw when it resolves as a group and otherwise records prefix\None.
func (ACLCodec) Group(raw, prefix string, isGroup func(string) bool) string {
	if isGroup != nil && isGroup(raw) {
		return raw
	}
	return prefix + NoneGroupSuffix
}

func (ACLCodec) Domain(principalName string) string {
	t := tokens(principalName)
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// PosixCodec handles user:group owner strings. POSIX principals carry no domain.
type PosixCodec struct{}

func (PosixCodec) Name() string { return config.OwnerEncodingPOSIX }

func (PosixCodec) Split(raw string) (string, string, error) {
	if raw == "" {
		return "", "", fmt.Errorf("empty owner")
	}
	i := strings.LastIndexByte(raw, ':')
	if i < 0 {
		return "", raw, nil
	}
	return raw[i+1:], raw[:i], nil
}

func (PosixCodec) Group(_, prefix string, _ func(string) bool) string {
	return prefix
}

func (PosixCodec) Domain(string) string {
	return ""
}

// CodecFor returns the codec registered under encoding.
func CodecFor(encoding string) (OwnerCodec, error) {
	switch encoding {
	case config.OwnerEncodingPOSIX:
		return PosixCodec{}, nil
	case config.OwnerEncodingACL:
		return ACLCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown owner encoding %q", encoding)
	}
}
