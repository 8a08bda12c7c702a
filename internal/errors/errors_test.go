package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCnosError_Error(t *testing.T) {
	err := New(ErrCategoryCatalog, CodeTableExists, "table exists")
	expected := "[CATALOG:TABLE_EXISTS] table exists"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestCnosError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeDownloadFailed, "download failed", cause)
	expected := "[STORAGE:DOWNLOAD_FAILED] download failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestCnosError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := ExecutionError(cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestCnosError_Is(t *testing.T) {
	err1 := New(ErrCategoryQuery, CodeParseError, "first")
	err2 := New(ErrCategoryQuery, CodeParseError, "second")
	err3 := New(ErrCategoryQuery, CodeLogicalPlanner, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestHasCode_NestedChain(t *testing.T) {
	inner := TableExists("cpu")
	outer := ExecutionError(inner)

	if GetCode(outer) != CodeExecution {
		t.Errorf("outer code mismatch: got %s, want %s", GetCode(outer), CodeExecution)
	}
	if !HasCode(outer, ErrCategoryCatalog, CodeTableExists) {
		t.Error("HasCode should find the wrapped catalog error")
	}
	if HasCode(outer, ErrCategoryCatalog, CodeTableNotFound) {
		t.Error("HasCode should not match an absent code")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryQuery, CodeRequestLimit, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryQuery, CodeParseError, false},
		{ErrCategoryQuery, CodeExecution, false},
		{ErrCategoryQuery, CodeBuildQueryDispatcher, false},
		{ErrCategoryCatalog, CodeDatabaseExists, false},
		{ErrCategoryValidation, CodeInvalidSchema, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
	if !IsRetryable(RequestLimitError(4)) {
		t.Error("RequestLimitError should be retryable")
	}
}

func TestGetCategory(t *testing.T) {
	err := ParseError(fmt.Errorf("unexpected token"))
	if GetCategory(err) != ErrCategoryQuery {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryQuery)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-CnosError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := ParseError(fmt.Errorf("unexpected token"))
	if GetCode(err) != CodeParseError {
		t.Errorf("got %q, want %q", GetCode(err), CodeParseError)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-CnosError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryValidation, CodeInvalidSchema, "bad schema")
	detailed := err.WithDetails(map[string]interface{}{"column": "time"})

	if detailed.Details["column"] != "time" {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewValidationError(CodeUnsupportedType, "int32")
	if v.Category != ErrCategoryValidation || v.Code != CodeUnsupportedType {
		t.Error("NewValidationError mismatch")
	}

	s := NewStorageError(CodeObjectNotFound, "missing", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	b := BuildDispatcherError("lost of parser")
	if b.Code != CodeBuildQueryDispatcher || b.Message != "lost of parser" {
		t.Error("BuildDispatcherError mismatch")
	}

	d := DatabaseNotFound("db1")
	if d.Category != ErrCategoryCatalog || d.Code != CodeDatabaseNotFound {
		t.Error("DatabaseNotFound mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
