package store

import (
	"context"
	"testing"
)

func TestAdminEnsureDefault(t *testing.T) {
	as := NewAdminStore(openTestDB(t))
	ctx := context.Background()

	created, err := as.EnsureDefault(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("ensure default: %v", err)
	}
	if !created {
		t.Error("expected default admin to be created")
	}

	created, err = as.EnsureDefault(ctx, "other", "pw")
	if err != nil {
		t.Fatalf("ensure default again: %v", err)
	}
	if created {
		t.Error("default admin must not be created twice")
	}
	if ok, _ := as.Verify(ctx, "other", "pw"); ok {
		t.Error("second default should not exist")
	}
}

func TestAdminVerify(t *testing.T) {
	as := NewAdminStore(openTestDB(t))
	ctx := context.Background()

	a, err := as.Create(ctx, "root", "hunter22")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Username != "root" {
		t.Errorf("username = %q, want %q", a.Username, "root")
	}

	tests := []struct {
		user, pass string
		want       bool
	}{
		{"root", "hunter22", true},
		{"root", "hunter2", false},
		{"nobody", "hunter22", false},
	}
	for _, tt := range tests {
		got, err := as.Verify(ctx, tt.user, tt.pass)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got != tt.want {
			t.Errorf("Verify(%q, %q) = %v, want %v", tt.user, tt.pass, got, tt.want)
		}
	}
}

func TestAdminCreateDuplicate(t *testing.T) {
	as := NewAdminStore(openTestDB(t))
	ctx := context.Background()
	if _, err := as.Create(ctx, "root", "a"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := as.Create(ctx, "root", "b"); err == nil {
		t.Fatal("expected error for duplicate username")
	}
}
