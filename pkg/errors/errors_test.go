package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeFileNotFound, "no such file")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeFileNotFound {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeFileNotFound)
		}
		if err.Category != CategoryFilesystem {
			t.Errorf("Category = %v, want %v", err.Category, CategoryFilesystem)
		}
		if err.HTTPStatus != 404 {
			t.Errorf("HTTPStatus = %d, want 404", err.HTTPStatus)
		}
		if err.Details == nil {
			t.Error("Details map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("formats message", func(t *testing.T) {
		err := Newf(ErrCodeIO, "mkdirs failed to create %s", "/a")
		if err.Message != "mkdirs failed to create /a" {
			t.Errorf("Message = %q", err.Message)
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidPath, CategoryValidation},
		{ErrCodeNegativeSeek, CategoryValidation},
		{ErrCodeFileNotFound, CategoryFilesystem},
		{ErrCodeDestinationIsFile, CategoryFilesystem},
		{ErrCodeDirectoryNotEmpty, CategoryFilesystem},
		{ErrCodeMissingIdentity, CategoryIdentity},
		{ErrCodeCrossDomainMismatch, CategoryIdentity},
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeIO, CategoryNative},
		{ErrCodeUnsupported, CategoryNative},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestGetDefaultHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{ErrCodeInvalidPath, 400},
		{ErrCodeMissingIdentity, 400},
		{ErrCodeFileNotFound, 404},
		{ErrCodeFileAlreadyExists, 409},
		{ErrCodeDirectoryNotEmpty, 409},
		{ErrCodeUnknownPrincipal, 422},
		{ErrCodeUnsupported, 501},
		{ErrCodeIO, 500},
		// Unmapped code should default to 500
		{ErrorCode("UNKNOWN_CODE"), 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetDefaultHTTPStatus(tt.code); got != tt.wantStatus {
				t.Errorf("GetDefaultHTTPStatus(%v) = %d, want %d", tt.code, got, tt.wantStatus)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "code and message only",
			err:  NewError(ErrCodeIO, "native call failed"),
			want: "NATIVE_IO: native call failed",
		},
		{
			name: "with component and operation",
			err:  NewError(ErrCodeFileNotFound, "no such file").WithComponent("filesystem").WithOperation("stat"),
			want: "[filesystem:stat] FILE_NOT_FOUND: no such file",
		},
		{
			name: "with operation and path",
			err:  NewError(ErrCodeFileNotFound, "no such file").WithOperation("open").WithPath("/missing"),
			want: "open FILE_NOT_FOUND: no such file: /missing",
		},
		{
			name: "with cause",
			err:  NewError(ErrCodeIO, "write failed").WithCause(fmt.Errorf("disk full")),
			want: "NATIVE_IO: write failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_IsAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := os.ErrPermission
	err := NewError(ErrCodeIO, "chown failed").WithCause(cause)
	wrapped := fmt.Errorf("setOwner: %w", err)

	if !errors.Is(wrapped, ErrIO) {
		t.Error("errors.Is should match the IO sentinel through wrapping")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Error("errors.Is should not match a different code")
	}
	if !errors.Is(wrapped, os.ErrPermission) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
	if CodeOf(wrapped) != ErrCodeIO {
		t.Errorf("CodeOf = %v, want %v", CodeOf(wrapped), ErrCodeIO)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf should be empty for uncoded errors")
	}
}

func TestFromOS(t *testing.T) {
	t.Parallel()

	pathErr := func(errno error) error {
		return &fs.PathError{Op: "op", Path: "/x", Err: errno}
	}

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"not exist", pathErr(syscall.ENOENT), ErrCodeFileNotFound},
		{"exist", pathErr(syscall.EEXIST), ErrCodeFileAlreadyExists},
		{"not empty", pathErr(syscall.ENOTEMPTY), ErrCodeDirectoryNotEmpty},
		{"not dir", pathErr(syscall.ENOTDIR), ErrCodeParentNotDirectory},
		{"not supported", pathErr(syscall.ENOTSUP), ErrCodeUnsupported},
		{"stdlib unsupported", fmt.Errorf("owner view: %w", errors.ErrUnsupported), ErrCodeUnsupported},
		{"other", pathErr(syscall.EIO), ErrCodeIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromOS("stat", "/x", tt.err)
			if got.Code != tt.want {
				t.Errorf("FromOS code = %v, want %v", got.Code, tt.want)
			}
			if got.Operation != "stat" || got.Path != "/x" {
				t.Errorf("FromOS context = %q %q", got.Operation, got.Path)
			}
			if !errors.Is(got, tt.err) {
				t.Error("FromOS should keep the native error as cause")
			}
		})
	}

	t.Run("nil passes through", func(t *testing.T) {
		if FromOS("stat", "/x", nil) != nil {
			t.Error("FromOS(nil) should be nil")
		}
	})

	t.Run("coded error is kept", func(t *testing.T) {
		orig := NewError(ErrCodeNegativeSeek, "negative")
		if FromOS("seek", "/x", orig) != orig {
			t.Error("FromOS should return an already coded error unchanged")
		}
	})
}

func TestIsHealthFailure(t *testing.T) {
	t.Parallel()

	if IsHealthFailure(nil) {
		t.Error("nil is not a failure")
	}
	if IsHealthFailure(NewError(ErrCodeFileNotFound, "missing")) {
		t.Error("not found is a caller error")
	}
	if IsHealthFailure(NewError(ErrCodeInvalidPath, "bad")) {
		t.Error("invalid path is a caller error")
	}
	if !IsHealthFailure(NewError(ErrCodeIO, "eio")) {
		t.Error("IO errors degrade health")
	}
	if !IsHealthFailure(errors.New("uncoded")) {
		t.Error("uncoded errors degrade health")
	}
}

func TestHTTPStatusOf(t *testing.T) {
	t.Parallel()

	if got := HTTPStatusOf(fmt.Errorf("wrap: %w", NewError(ErrCodeFileNotFound, "x"))); got != 404 {
		t.Errorf("HTTPStatusOf = %d, want 404", got)
	}
	if got := HTTPStatusOf(&Error{Code: ErrCodeDirectoryNotEmpty}); got != 409 {
		t.Errorf("HTTPStatusOf zero status = %d, want 409", got)
	}
	if got := HTTPStatusOf(errors.New("x")); got != 500 {
		t.Errorf("HTTPStatusOf uncoded = %d, want 500", got)
	}
}

func TestError_JSON(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeUnknownPrincipal, "unknown user").WithPath("/a").WithDetail("user", "alice")
	var decoded map[string]interface{}
	if jerr := json.Unmarshal([]byte(err.JSON()), &decoded); jerr != nil {
		t.Fatalf("JSON() is not valid JSON: %v", jerr)
	}
	if decoded["code"] != string(ErrCodeUnknownPrincipal) {
		t.Errorf("code = %v", decoded["code"])
	}
	if decoded["path"] != "/a" {
		t.Errorf("path = %v", decoded["path"])
	}
	if !strings.Contains(err.String(), "Details=") {
		t.Error("String() should include details")
	}
}
