package repository

import (
	"context"
	"testing"
	"time"
)

func TestMemorySessionStorage_SetGetRemove(t *testing.T) {
	s := NewMemorySessionStorage(0)
	ctx := context.Background()

	if err := s.SetMany(ctx, "sid-1", map[string]string{"accessToken": "tok", "user": "{}"}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	got, err := s.GetMany(ctx, "sid-1", "accessToken", "refreshToken", "user")
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 2 || got["accessToken"] != "tok" {
		t.Errorf("GetMany = %v, want accessToken and user", got)
	}

	// 別sidからは見えない
	other, _ := s.GetMany(ctx, "sid-2", "accessToken")
	if len(other) != 0 {
		t.Errorf("sid-2 sees %v, want empty", other)
	}

	if err := s.Remove(ctx, "sid-1", "accessToken", "user"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, _ = s.GetMany(ctx, "sid-1", "accessToken", "user")
	if len(got) != 0 {
		t.Errorf("after Remove = %v, want empty", got)
	}
}

func TestMemorySessionStorage_Expiry(t *testing.T) {
	s := NewMemorySessionStorage(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.SetMany(ctx, "sid-1", map[string]string{"user": "{}"})

	now = now.Add(2 * time.Minute)
	got, _ := s.GetMany(ctx, "sid-1", "user")
	if len(got) != 0 {
		t.Errorf("expired entry returned: %v", got)
	}

	n, err := s.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
