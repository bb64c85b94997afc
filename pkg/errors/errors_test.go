package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", retryable: true},
		{code: CodeInsufficient, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error"},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestRetryableFollowsOutermostCode(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{New(CodeConflict, "stock entry changed concurrently"), true},
		{fmt.Errorf("settle: %w", Wrap(CodeDependency, stdErrors.New("timeout"), "apply stock delta")), true},
		{New(CodeInsufficient, "insufficient stock"), false},
		{Wrap(CodeInternal, New(CodeConflict, "inner"), "outer"), false},
		{stdErrors.New("plain"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing quantity")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing quantity" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "quantity"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "apply stock delta")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "sale not found"))
	if got := As(err); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeWalksNestedTypedErrors(t *testing.T) {
	inner := New(CodeInsufficient, "only 1 available")
	outer := Wrap(CodeDependency, inner, "stock check")

	if !IsCode(outer, CodeDependency) {
		t.Fatalf("expected outer code to match")
	}
	if !IsCode(outer, CodeInsufficient) {
		t.Fatalf("expected nested code to match")
	}
	if IsCode(outer, CodeConflict) {
		t.Fatalf("did not expect conflict")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("untyped errors carry no code")
	}
}

func TestTraceCapturesPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_stock_holds_sale_id", TableName: "stock_holds"}
	err := Wrap(CodeConflict, fmt.Errorf("insert hold: %w", pgErr), "hold stock")

	trace := TraceOf(err)
	if trace.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", trace.Code)
	}
	if trace.PG == nil || trace.PG.SQLState != "23505" || trace.PG.Constraint != "ux_stock_holds_sale_id" || trace.PG.Table != "stock_holds" {
		t.Fatalf("unexpected pg fault %+v", trace.PG)
	}
	if len(trace.Chain) < 3 {
		t.Fatalf("expected at least three chain entries, got %d", len(trace.Chain))
	}

	fields := trace.LogFields()
	if fields["pg_constraint"] != "ux_stock_holds_sale_id" || fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected log fields %v", fields)
	}
}

func TestTraceWithoutPostgres(t *testing.T) {
	fields := TraceOf(New(CodeInsufficient, "no stock")).LogFields()
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("did not expect pg fields %v", fields)
	}
	if fields["error_code"] != CodeInsufficient {
		t.Fatalf("unexpected code %v", fields["error_code"])
	}
	if len(TraceOf(nil).Chain) != 0 {
		t.Fatalf("nil error should trace empty")
	}
}
