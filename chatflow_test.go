package chatflow_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
)

const pizzaYAML = `
id: pizza
name: Pizza Bot
conversationFlow:
  nodes:
    - id: 1
      type: message
      data:
        message: Welcome to Pizza
    - id: 2
      type: code
      data:
        code: "set('total', 2 * 21)"
    - id: 3
      type: confirmation
      data:
        message: "Pay {total}?"
    - id: 4
      type: message
      data:
        message: Paid
    - id: 5
      type: redirect
      data:
        redirectUrl: https://example.com/cancel
  edges:
    - {source: 1, target: 2}
    - {source: 2, target: 3}
    - {source: 3, target: 4, sourceHandle: "yes"}
    - {source: 3, target: 5, sourceHandle: "no"}
`

func botsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pizza.yaml"), []byte(pizzaYAML), 0644))
	return dir
}

type diffRecorder struct {
	mu    sync.Mutex
	diffs []*domain.SessionDiff
}

func (r *diffRecorder) Notify(ctx context.Context, d *domain.SessionDiff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diffs = append(r.diffs, d)
}

func TestNew_RequiresBotsDir(t *testing.T) {
	_, err := chatflow.New("")
	assert.Error(t, err)
}

func TestEngine_FileBots(t *testing.T) {
	store := memory.NewStore()
	eng, err := chatflow.New(botsDir(t), chatflow.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	bots, err := eng.Bots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pizza"}, bots)

	reply, err := eng.Start(ctx, "pizza")
	require.NoError(t, err)
	require.NotNil(t, reply.AwaitingInput)
	assert.Equal(t, domain.NodeTypeConfirmation, reply.AwaitingInput.Type)
	assert.Equal(t, "Welcome to Pizza", reply.Messages[0].Content)
	assert.Equal(t, "Pay 42?", reply.Messages[len(reply.Messages)-1].Content)

	reply, err = eng.Respond(ctx, reply.SessionID, flow.Response{Input: "yes"})
	require.NoError(t, err)
	assert.True(t, reply.Finished)
	assert.Equal(t, "Paid", reply.Messages[0].Content)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{reply.SessionID}, ids)
	assert.Same(t, store, eng.Store())
}

func TestEngine_UnknownBot(t *testing.T) {
	eng, err := chatflow.New(botsDir(t))
	require.NoError(t, err)

	_, err = eng.Start(context.Background(), "burger")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)
}

func TestEngine_NotifierAndHooks(t *testing.T) {
	rec := &diffRecorder{}
	var mu sync.Mutex
	var entered []string

	eng, err := chatflow.New(botsDir(t),
		chatflow.WithNotifier(rec),
		chatflow.WithLifecycleHooks(domain.LifecycleHooks{
			OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
				mu.Lock()
				defer mu.Unlock()
				entered = append(entered, e.NodeID)
			},
		}),
	)
	require.NoError(t, err)

	reply, err := eng.Start(context.Background(), "pizza")
	require.NoError(t, err)
	_, err = eng.Respond(context.Background(), reply.SessionID, flow.Response{Input: "no"})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3", "3", "5"}, entered)
	mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.diffs)
	assert.Equal(t, reply.SessionID, rec.diffs[0].SessionID)
}

func TestEngine_MaxSteps(t *testing.T) {
	loop := `{
		"nodes": [
			{"id": "1", "type": "message", "data": {"message": "again"}},
			{"id": "2", "type": "message", "data": {"message": "and again"}}
		],
		"edges": [
			{"source": "1", "target": "2"},
			{"source": "2", "target": "1"}
		]
	}`
	bots, err := memory.NewFromJSON(map[string]string{"loop": loop})
	require.NoError(t, err)

	eng, err := chatflow.New("", chatflow.WithBotProvider(bots), chatflow.WithMaxSteps(10))
	require.NoError(t, err)

	reply, err := eng.Start(context.Background(), "loop")
	require.NoError(t, err)
	assert.True(t, reply.Finished)
	assert.NotEmpty(t, reply.Notice)
	assert.LessOrEqual(t, len(reply.Messages), 10)
}
