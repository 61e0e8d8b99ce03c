package middleware_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/anima/pkg/adapters/memory"
	"github.com/aretw0/anima/pkg/persistence/middleware"
	"github.com/aretw0/anima/pkg/soulmemory"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewFactStore()
	// Mask keys containing "password" or "ssn"
	store := middleware.NewPIIMiddleware([]string{"password", "ssn"})(underlying)
	ctx := context.Background()

	facts, err := soulmemory.Open(ctx, "samantha", store)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := facts.Set(ctx, "userName", "jdoe"); err != nil {
		t.Fatal(err)
	}
	if err := facts.Set(ctx, "user_password", "secret123"); err != nil {
		t.Fatal(err)
	}
	if err := facts.Set(ctx, "details", map[string]any{"address": "123 St", "ssn_number": "999-99-9999"}); err != nil {
		t.Fatal(err)
	}

	// The running soul keeps the real value.
	if v, _ := facts.GetString("user_password"); v != "secret123" {
		t.Error("Middleware modified the in-memory fact")
	}

	stored, err := underlying.Load(ctx, "samantha")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if string(stored["userName"]) != `"jdoe"` {
		t.Errorf("userName shouldn't be masked, got %s", stored["userName"])
	}
	if string(stored["user_password"]) != `"***"` {
		t.Errorf("Password should be masked, got: %s", stored["user_password"])
	}

	var details map[string]any
	if err := json.Unmarshal(stored["details"], &details); err != nil {
		t.Fatal(err)
	}
	if details["ssn_number"] != middleware.Masked {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	if details["address"] != "123 St" {
		t.Errorf("Address shouldn't be masked, got: %v", details["address"])
	}
}

func TestChain_Order(t *testing.T) {
	underlying := memory.NewFactStore()
	store := middleware.Chain(underlying,
		middleware.NewPIIMiddleware([]string{"password"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}),
	)
	ctx := context.Background()

	if err := store.Put(ctx, "samantha", "password", json.RawMessage(`"secret"`)); err != nil {
		t.Fatal(err)
	}
	facts, err := store.Load(ctx, "samantha")
	if err != nil {
		t.Fatal(err)
	}
	if string(facts["password"]) != `"***"` {
		t.Errorf("Expected masked then encrypted value, got %s", facts["password"])
	}
}
