package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := AccessDenied("session not found or access denied")
	wrapped := fmt.Errorf("list messages: %w", base)

	if got := KindOf(wrapped); got != KindAccessDenied {
		t.Fatalf("expected access_denied, got %s", got)
	}
	if got := HTTPStatus(KindOf(wrapped)); got != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
	if got := HTTPStatus(KindUnknown); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestPersistence_UnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence("failed to create session", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the cause")
	}
	if err.Error() != "failed to create session: disk full" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestNewULID_Monotonic(t *testing.T) {
	prev := ""
	for i := 0; i < 50; i++ {
		id, err := NewULID()
		if err != nil {
			t.Fatalf("new ulid: %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("unexpected ulid length %d", len(id))
		}
		if id <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, id)
		}
		prev = id
	}
}
