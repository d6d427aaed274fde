package utils

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		segment     string
		errContains string
	}{
		{"plain name", "report.txt", ""},
		{"backslash allowed", `CORP\alice`, ""},
		{"max length", strings.Repeat("a", MaxSegmentLength), ""},
		{"empty", "", "cannot be empty"},
		{"dot", ".", "not allowed"},
		{"dot dot", "..", "not allowed"},
		{"separator", "a/b", "separator"},
		{"nul byte", "a\x00b", "NUL"},
		{"too long", strings.Repeat("a", MaxSegmentLength+1), "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSegment(tt.segment)
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("ValidateSegment(%q) unexpected error: %v", tt.segment, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidateSegment(%q) error = %v, want containing %q", tt.segment, err, tt.errContains)
			}
		})
	}
}

func TestSecureJoin(t *testing.T) {
	t.Parallel()

	base := filepath.Join(string(filepath.Separator), "srv", "data")

	tests := []struct {
		name     string
		elements []string
		want     string
		wantErr  bool
	}{
		{"no elements", nil, base, false},
		{"nested", []string{"a", "b.txt"}, filepath.Join(base, "a", "b.txt"), false},
		{"escape", []string{"..", "etc"}, "", true},
		{"sibling prefix", []string{"..", "data2"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SecureJoin(base, tt.elements...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SecureJoin error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SecureJoin = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("root base", func(t *testing.T) {
		got, err := SecureJoin(string(filepath.Separator), "tmp")
		if err != nil || got != filepath.Join(string(filepath.Separator), "tmp") {
			t.Errorf("SecureJoin(/, tmp) = %q, %v", got, err)
		}
	})

	t.Run("empty base", func(t *testing.T) {
		if _, err := SecureJoin(""); err == nil {
			t.Error("expected error for empty base")
		}
	})
}

func TestRelativeTo(t *testing.T) {
	t.Parallel()

	base := filepath.Join(string(filepath.Separator), "srv", "data")

	segs, ok := RelativeTo(base, filepath.Join(base, "a", "b"))
	if !ok || len(segs) != 2 || segs[0] != "a" || segs[1] != "b" {
		t.Errorf("RelativeTo nested = %v, %v", segs, ok)
	}

	segs, ok = RelativeTo(base, base)
	if !ok || len(segs) != 0 {
		t.Errorf("RelativeTo self = %v, %v", segs, ok)
	}

	if _, ok := RelativeTo(base, filepath.Join(string(filepath.Separator), "srv")); ok {
		t.Error("RelativeTo parent should not be inside base")
	}
}

func BenchmarkSecureJoin(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = SecureJoin("/srv/data", "a", "b", "c.txt")
	}
}
