package runner

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/session"
)

const orderBot = `{
	"nodes": [
		{"id": "1", "type": "message", "data": {"message": "Welcome"}},
		{"id": "2", "type": "question", "data": {"message": "Name?", "variable": "name"}},
		{"id": "3", "type": "branch", "data": {"message": "Size, {name}?", "options": ["Small", "Large"]}},
		{"id": "3-opt-0", "type": "branchOption", "data": {"label": "Small"}},
		{"id": "3-opt-1", "type": "branchOption", "data": {"label": "Large"}},
		{"id": "4", "type": "message", "data": {"message": "Small it is"}},
		{"id": "5", "type": "message", "data": {"message": "Large it is"}}
	],
	"edges": [
		{"source": "1", "target": "2"},
		{"source": "2", "target": "3"},
		{"source": "3-opt-0", "target": "4"},
		{"source": "3-opt-1", "target": "5"}
	]
}`

func newService(t *testing.T) *flow.Service {
	t.Helper()
	bots, err := memory.NewFromJSON(map[string]string{"order": orderBot})
	if err != nil {
		t.Fatalf("load bot: %v", err)
	}
	return flow.NewService(bots, session.NewManager(memory.NewStore()))
}

func TestRunner_Conversation(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRunner(newService(t),
		WithBotID("order"),
		WithInputHandler(NewTextHandler(strings.NewReader("Ana\nLarge\n"), out)),
	)

	id, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if id == "" {
		t.Error("Expected a session id")
	}

	output := out.String()
	for _, expected := range []string{"Welcome", "Name?", "Size, Ana?", "Large it is"} {
		if !strings.Contains(output, expected) {
			t.Errorf("Expected output to contain %q, got %q", expected, output)
		}
	}
}

func TestRunner_RejectedInputRetries(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRunner(newService(t),
		WithBotID("order"),
		WithInputHandler(NewTextHandler(strings.NewReader("Ana\nMedium\n1\n"), out)),
	)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "[System]") {
		t.Errorf("Expected a system message for the rejected option, got %q", output)
	}
	if !strings.Contains(output, "Small it is") {
		t.Errorf("Expected the flow to continue after retry, got %q", output)
	}
}

func TestRunner_ResumeAfterEOF(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	out := &bytes.Buffer{}
	first := NewRunner(svc, WithBotID("order"), WithInputHandler(NewTextHandler(strings.NewReader("Ana\n"), out)))
	id, err := first.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), "Session "+id+" saved") {
		t.Errorf("Expected save notice, got %q", out.String())
	}

	out.Reset()
	second := NewRunner(svc, WithSessionID(id), WithInputHandler(NewTextHandler(strings.NewReader("2\n"), out)))
	if _, err := second.Run(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	output := out.String()
	if !strings.Contains(output, "Size, Ana?") || !strings.Contains(output, "Large it is") {
		t.Errorf("Unexpected resume output %q", output)
	}
}

func TestRunner_RequiresBotOrSession(t *testing.T) {
	r := NewRunner(newService(t), WithInputHandler(NewJSONHandler(strings.NewReader(""), &bytes.Buffer{})))
	if _, err := r.Run(context.Background()); err == nil {
		t.Error("Expected error without bot or session")
	}
}
