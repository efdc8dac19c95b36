package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:    http.StatusNotFound,
		KindValidation:  http.StatusBadRequest,
		KindBadRequest:  http.StatusBadRequest,
		KindConflict:    http.StatusConflict,
		KindInternal:    http.StatusInternalServerError,
		KindUnavailable: http.StatusServiceUnavailable,
		KindUnknown:     http.StatusBadRequest,
	}
	for kind, want := range cases {
		if got := New(kind, "x").HTTPStatus(); got != want {
			t.Fatalf("kind %d: expected status %d, got %d", kind, want, got)
		}
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	base := Conflict("resource taken").WithCode("NO_AVAILABLE_ROOM")
	wrapped := fmt.Errorf("book: %w", base)

	if !HasCode(wrapped, "NO_AVAILABLE_ROOM") {
		t.Fatalf("expected code to be found through wrapping, got %q", CodeOf(wrapped))
	}
	if GetKind(wrapped) != KindConflict {
		t.Fatal("expected conflict kind through wrapping")
	}
}

func TestPlainErrorHasNoKind(t *testing.T) {
	err := errors.New("boom")
	if GetKind(err) != KindUnknown {
		t.Fatal("expected unknown kind for plain error")
	}
	if HasCode(nil, "") {
		t.Fatal("nil error must not match any code")
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := Wrap(KindInternal, "insert failed", errors.New("connection reset")).WithOp("booking.persist")
	want := "booking.persist: insert failed: connection reset"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}
