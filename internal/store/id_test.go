package store

import (
	"testing"
)

func TestGenerateID(t *testing.T) {
	t.Run("valid prefix", func(t *testing.T) {
		id, err := GenerateID("dc", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(id) != 3+idHashLength {
			t.Fatalf("expected length %d, got %d: %s", 3+idHashLength, len(id), id)
		}
		if id[:3] != "dc-" {
			t.Fatalf("expected prefix dc-, got %s", id[:3])
		}
	})

	t.Run("empty prefix", func(t *testing.T) {
		_, err := GenerateID("", nil)
		if err == nil {
			t.Fatal("expected error for empty prefix")
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		exists := func(id string) (bool, error) {
			calls++
			return calls < 3, nil // first 2 calls collide
		}
		id, err := GenerateID("sr", exists)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if calls != 3 {
			t.Fatalf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		exists := func(id string) (bool, error) {
			return true, nil
		}
		_, err := GenerateID("sr", exists)
		if err == nil {
			t.Fatal("expected error after max attempts")
		}
	})
}

func TestGenerateDocumentAndSessionID(t *testing.T) {
	docID, err := GenerateDocumentID(nil)
	if err != nil {
		t.Fatalf("generate document id: %v", err)
	}
	if docID[:3] != "dc-" {
		t.Fatalf("expected document id with dc- prefix, got %q", docID)
	}

	sessionID, err := GenerateSessionID(nil)
	if err != nil {
		t.Fatalf("generate session id: %v", err)
	}
	if sessionID[:3] != "sr-" {
		t.Fatalf("expected session id with sr- prefix, got %q", sessionID)
	}
}
