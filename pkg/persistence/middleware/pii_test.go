package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := memory.NewStore()
	secureStore := middleware.NewPIIMiddleware([]string{"password", "ssn"})(underlyingStore)

	ctx := context.Background()
	session := domain.NewSession("pii-session", "bot")
	session.Variables["username"] = "jdoe"
	session.Variables["user_password"] = "secret123"
	session.Variables["details"] = map[string]any{
		"address":    "123 St",
		"ssn_number": "999-99-9999",
	}
	session.Append(
		domain.HistoryEntry{NodeID: "q", Type: "question", Content: "Password?", AwaitingInput: true},
		domain.HistoryEntry{NodeID: "q", Type: "user_input", Content: "secret123", FromUser: true},
		domain.HistoryEntry{NodeID: "q", Type: "question", Content: domain.QuestionAnswer{Prompt: "Password?", Answer: "secret123", Variable: "user_password"}},
		domain.HistoryEntry{NodeID: "n", Type: "user_input", Content: "jdoe", FromUser: true},
		domain.HistoryEntry{NodeID: "n", Type: "question", Content: domain.QuestionAnswer{Prompt: "Name?", Answer: "jdoe", Variable: "username"}},
	)

	if err := secureStore.Save(ctx, session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if session.Variables["user_password"] != "secret123" {
		t.Error("Middleware modified original session in memory!")
	}
	if session.History[1].Content != "secret123" {
		t.Error("Middleware modified original history in memory!")
	}
	if session.Version != 1 {
		t.Errorf("Expected version to propagate, got %d", session.Version)
	}

	stored, err := underlyingStore.Load(ctx, "pii-session")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}

	if stored.Variables["username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if stored.Variables["user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", stored.Variables["user_password"])
	}
	details := stored.Variables["details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}

	if stored.History[1].Content != middleware.Mask {
		t.Errorf("User input for a sensitive question should be masked, got: %v", stored.History[1].Content)
	}
	if answer := stored.History[2].Content.(domain.QuestionAnswer).Answer; answer != middleware.Mask {
		t.Errorf("Answer should be masked, got: %v", answer)
	}
	if stored.History[3].Content != "jdoe" {
		t.Error("Non-sensitive input shouldn't be masked")
	}
}

func TestChain_Order(t *testing.T) {
	underlyingStore := memory.NewStore()
	store := middleware.Chain(underlyingStore,
		middleware.NewPIIMiddleware([]string{"password"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}),
	)

	ctx := context.Background()
	session := domain.NewSession("chained", "bot")
	session.Variables["password"] = "hunter2"
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Masked before encryption, so the decrypted view is masked too.
	loaded, err := store.Load(ctx, "chained")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Variables["password"] != middleware.Mask {
		t.Errorf("Expected masked password, got %v", loaded.Variables["password"])
	}
}
