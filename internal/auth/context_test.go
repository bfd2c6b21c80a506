package auth

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), Context{UserID: 7, Email: "alice@example.com"})

	ac, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected auth context present")
	}
	if ac.UserID != 7 || ac.Email != "alice@example.com" {
		t.Errorf("got %+v", ac)
	}
	if got := UserID(ctx); got != 7 {
		t.Errorf("UserID = %d, want 7", got)
	}
}

func TestContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no auth context on empty context")
	}
	if got := UserID(context.Background()); got != 0 {
		t.Errorf("UserID = %d, want 0", got)
	}
}
