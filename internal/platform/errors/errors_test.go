package errors_test

import (
	stderrs "errors"
	"net/http"
	"testing"

	perr "secondbrain/internal/platform/errors"
)

func TestHTTPStatusCodeMapping(t *testing.T) {
	cases := []struct {
		code perr.ErrorCode
		want int
	}{
		{perr.ErrorCodeNotFound, http.StatusNotFound},
		{perr.ErrorCodeValidation, http.StatusBadRequest},
		{perr.ErrorCodeJSON, http.StatusBadRequest},
		{perr.ErrorCodeInvalidArgument, http.StatusUnprocessableEntity},
		{perr.ErrorCodeUnauthorized, http.StatusUnauthorized},
		{perr.ErrorCodeTimeout, http.StatusGatewayTimeout},
		{perr.ErrorCodeUnavailable, http.StatusServiceUnavailable},
		{perr.ErrorCodeStorage, http.StatusInternalServerError},
		{perr.ErrorCodeUnknown, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := perr.HTTPStatusCode(c.code); got != c.want {
			t.Fatalf("code %d: expected %d, got %d", c.code, c.want, got)
		}
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := stderrs.New("boom")
	err := perr.Wrap(cause, perr.ErrorCodeStorage, "write failed")

	if !stderrs.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}
	if perr.CodeOf(err) != perr.ErrorCodeStorage {
		t.Fatalf("expected storage code, got %d", perr.CodeOf(err))
	}
	if root := perr.Root(err); root != cause {
		t.Fatalf("Root: expected cause, got %v", root)
	}
}

func TestWireFrom(t *testing.T) {
	w := perr.WireFrom(perr.Validationf("bucket %q is not valid", "Stuff"))
	if w.Code != perr.ErrorCodeValidation {
		t.Fatalf("expected validation code, got %d", w.Code)
	}
	if w.Message == "" {
		t.Fatalf("expected message")
	}

	// foreign errors map to unknown
	w2 := perr.WireFrom(stderrs.New("plain"))
	if w2.Code != perr.ErrorCodeUnknown {
		t.Fatalf("expected unknown code for foreign error, got %d", w2.Code)
	}

	if w3 := perr.WireFrom(nil); w3.Code != perr.ErrorCodeUnknown || w3.Message != "" {
		t.Fatalf("expected zero wire for nil error, got %+v", w3)
	}
}

func TestWithFieldAndOp(t *testing.T) {
	err := perr.Validationf("required")
	err = perr.WithField(err, "text")
	err = perr.WithOp(err, "capture.file")

	e, ok := perr.As(err)
	if !ok {
		t.Fatalf("expected project error")
	}
	if e.Field() != "text" || e.Op() != "capture.file" {
		t.Fatalf("field/op not attached: %q %q", e.Field(), e.Op())
	}
}

func TestIsCodeOnSentinel(t *testing.T) {
	if !perr.IsCode(perr.ErrNotFound, perr.ErrorCodeNotFound) {
		t.Fatalf("sentinel should carry not found code")
	}
}
