package dsl

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/session"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	b := New("greeter").Name("Greeter")

	b.Message("1", "Hello, DSL!").Go("2")
	b.Question("2", "What is your name?", "name").Go("3")
	b.Message("3", "Nice to meet you, {name}!")

	bot, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if bot.ID != "greeter" || bot.Name != "Greeter" {
		t.Errorf("Unexpected bot metadata: %+v", bot)
	}
	if len(bot.Flow.Nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(bot.Flow.Nodes))
	}
	if bot.Flow.Nodes[0].ID != "1" {
		t.Errorf("Expected declaration order, got first node %q", bot.Flow.Nodes[0].ID)
	}
	q, ok := bot.Flow.Nodes[1].Data.(domain.QuestionData)
	if !ok || q.Variable != "name" {
		t.Errorf("Expected question storing 'name', got %#v", bot.Flow.Nodes[1].Data)
	}
	if len(bot.Flow.Edges) != 2 {
		t.Fatalf("Expected 2 edges, got %d", len(bot.Flow.Edges))
	}
	if e := bot.Flow.Edges[1]; e.Source != "2" || e.Target != "3" || e.ID != "e2" {
		t.Errorf("Unexpected edge %+v", e)
	}
}

func TestBuilder_BranchOptions(t *testing.T) {
	b := New("sizes")
	b.Branch("1", "Size?").
		Option("Small", "2").
		Option("Large", "3")
	b.Message("2", "small")
	b.Message("3", "large")

	bot, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	branch := bot.Flow.Nodes[0].Data.(domain.BranchData)
	if strings.Join(branch.Options, ",") != "Small,Large" {
		t.Errorf("Unexpected options %v", branch.Options)
	}
	opt := bot.Flow.Nodes[2]
	if opt.ID != "1-opt-1" || opt.Type != domain.NodeTypeBranchOption {
		t.Errorf("Expected option node 1-opt-1, got %+v", opt)
	}
	if opt.Data.(domain.BranchOptionData).Label != "Large" {
		t.Errorf("Expected label Large, got %+v", opt.Data)
	}
}

func TestBuilder_HandlesAndTimeout(t *testing.T) {
	b := New("checkout")
	b.Confirm("1", "Pay now?").Yes("2").No("4")
	b.Code("2", "variables.paid = true").Timeout(250).OnSuccess("3").Error("4")
	b.Message("3", "Paid")
	b.Redirect("4", "https://example.com/help")

	bot, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	handles := map[string]string{}
	for _, e := range bot.Flow.Edges {
		handles[e.Source+":"+e.SourceHandle] = e.Target
	}
	expected := map[string]string{"1:yes": "2", "1:no": "4", "2:success": "3", "2:error": "4"}
	for k, v := range expected {
		if handles[k] != v {
			t.Errorf("Expected %s -> %s, got %q", k, v, handles[k])
		}
	}
	if code := bot.Flow.Nodes[1].Data.(domain.CodeData); code.Timeout != 250 {
		t.Errorf("Expected timeout 250, got %d", code.Timeout)
	}
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  string
	}{
		{
			name: "duplicate id",
			build: func(b *Builder) {
				b.Message("1", "a")
				b.Message("1", "b")
			},
			want: "declared twice",
		},
		{
			name: "handle on wrong node",
			build: func(b *Builder) {
				b.Message("1", "a").Yes("1")
			},
			want: "Yes only applies to confirmation nodes",
		},
		{
			name: "unknown target",
			build: func(b *Builder) {
				b.Message("1", "a").Go("missing")
			},
			want: "unknown target",
		},
		{
			name:  "empty",
			build: func(b *Builder) {},
			want:  "no nodes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("broken")
			tt.build(b)
			_, err := b.Build()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBuilder_RunsOnEngine(t *testing.T) {
	b := New("order")
	b.Question("1", "Name?", "name").Go("2")
	b.Branch("2", "Size, {name}?").
		Option("Small", "3").
		Option("Large", "4")
	b.Message("3", "Small for {name}")
	b.Message("4", "Large for {name}")

	provider, err := b.Provider()
	if err != nil {
		t.Fatalf("Provider() failed: %v", err)
	}
	svc := flow.NewService(provider, session.NewManager(memory.NewStore()))
	ctx := context.Background()

	reply, err := svc.Start(ctx, "order")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := svc.Respond(ctx, reply.SessionID, flow.Response{Input: "Ana"}); err != nil {
		t.Fatalf("Respond(name) failed: %v", err)
	}
	reply, err = svc.Respond(ctx, reply.SessionID, flow.Response{Option: 1})
	if err != nil {
		t.Fatalf("Respond(option) failed: %v", err)
	}
	if !reply.Finished {
		t.Error("Expected finished session")
	}
	var found bool
	for _, m := range reply.Messages {
		found = found || m.Content == "Large for Ana"
	}
	if !found {
		t.Errorf("Expected 'Large for Ana' in %+v", reply.Messages)
	}
}
