package auth

import (
	"context"
	"errors"
	"testing"
)

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver("tok1:alice, tok2:bob")

	id, err := r.Resolve(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.UserID != "alice" {
		t.Fatalf("unexpected user: %s", id.UserID)
	}

	if _, err := r.Resolve(context.Background(), "bad"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestStaticResolverEmptySpecAllowsAnonymous(t *testing.T) {
	r := NewStaticResolver("")

	id, err := r.Resolve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.UserID != "anonymous" {
		t.Fatalf("unexpected user: %s", id.UserID)
	}
}

func TestStaticResolverMalformedPairsIgnored(t *testing.T) {
	r := NewStaticResolver("tok1:alice,garbage,:nouser,notoken:")

	if _, err := r.Resolve(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("malformed pair accepted: %v", err)
	}
	id, err := r.Resolve(context.Background(), "tok1")
	if err != nil || id.UserID != "alice" {
		t.Fatalf("valid pair lost: %v %v", id, err)
	}
}
