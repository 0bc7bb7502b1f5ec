package flow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/session"
)

const pizzaBot = `{
	"nodes": [
		{"id": "1", "type": "message", "data": {"message": "Welcome to Pizza Bot"}},
		{"id": "2", "type": "question", "data": {"message": "What is your name?", "variable": "name"}},
		{"id": "3", "type": "branch", "data": {"message": "Hi {name}, pick a size", "options": ["Small", "Large"]}},
		{"id": "3-opt-0", "type": "branchOption", "data": {"label": "Small"}},
		{"id": "3-opt-1", "type": "branchOption", "data": {"label": "Large"}},
		{"id": "4", "type": "confirmation", "data": {"message": "Extra cheese?"}},
		{"id": "5", "type": "message", "data": {"message": "Cheesy pizza for {name}"}},
		{"id": "6", "type": "message", "data": {"message": "Plain pizza for {name}"}}
	],
	"edges": [
		{"source": "1", "target": "2"},
		{"source": "2", "target": "3"},
		{"source": "3-opt-0", "target": "4"},
		{"source": "3-opt-1", "target": "4"},
		{"source": "4", "target": "5", "sourceHandle": "yes"},
		{"source": "4", "target": "6", "sourceHandle": "no"}
	]
}`

type fixture struct {
	svc   *flow.Service
	bots  *memory.BotProvider
	store *memory.Store
}

func newFixture(t *testing.T, opts ...flow.Option) *fixture {
	t.Helper()
	bots, err := memory.NewFromJSON(map[string]string{"pizza": pizzaBot})
	require.NoError(t, err)
	store := memory.NewStore()

	n := 0
	opts = append([]flow.Option{flow.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("sess-%d", n)
	})}, opts...)

	return &fixture{
		svc:   flow.NewService(bots, session.NewManager(store), opts...),
		bots:  bots,
		store: store,
	}
}

func TestService_FullConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reply, err := f.svc.Start(ctx, "pizza")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", reply.SessionID)
	assert.False(t, reply.Finished)
	require.Len(t, reply.Messages, 2)
	assert.Equal(t, flow.Message{Type: "message", Content: "Welcome to Pizza Bot", NodeID: "1"}, reply.Messages[0])
	assert.Equal(t, flow.Message{Type: "question", Content: "What is your name?", NodeID: "2", Variable: "name", AwaitingInput: true}, reply.Messages[1])
	assert.Equal(t, &flow.Awaiting{Type: domain.NodeTypeQuestion, NodeID: "2", Variable: "name", Options: []string{}}, reply.AwaitingInput)

	sess, err := f.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "2", sess.CurrentNodeID)
	require.Len(t, sess.History, 2)
	assert.True(t, sess.History[1].AwaitingInput)

	reply, err = f.svc.Respond(ctx, "sess-1", flow.Response{Input: "Alice"})
	require.NoError(t, err)
	require.Len(t, reply.Messages, 1)
	assert.Equal(t, "Hi Alice, pick a size", reply.Messages[0].Content)
	assert.Equal(t, []string{"Small", "Large"}, reply.Messages[0].Options)
	assert.Equal(t, domain.NodeTypeBranch, reply.AwaitingInput.Type)
	assert.Equal(t, "Alice", reply.Variables["name"])

	reply, err = f.svc.Respond(ctx, "sess-1", flow.Response{Option: 1})
	require.NoError(t, err)
	assert.Equal(t, "4", reply.AwaitingInput.NodeID)

	reply, err = f.svc.Respond(ctx, "sess-1", flow.Response{Input: "YES"})
	require.NoError(t, err)
	assert.True(t, reply.Finished)
	assert.Nil(t, reply.AwaitingInput)
	require.Len(t, reply.Messages, 1)
	assert.Equal(t, "Cheesy pizza for Alice", reply.Messages[0].Content)

	sess, err = f.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, sess.Finished)
	assert.Equal(t, "5", sess.CurrentNodeID)

	var types []string
	for _, e := range sess.History {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		"message", "question",
		"user_input", "question", "branch",
		"branch_select", "confirmation",
		"user_input", "confirmation", "message",
	}, types)
	assert.Equal(t, domain.BranchSelection{SelectedOptionNodeID: "3-opt-1", Selected: 1}, sess.History[5].Content)
	assert.True(t, sess.History[5].FromUser)
}

func TestService_BranchSelectByLabelOrInput(t *testing.T) {
	ctx := context.Background()

	for _, resp := range []flow.Response{
		{Option: "Large"},
		{Option: "0"},
		{Input: "Small"},
	} {
		f := newFixture(t)
		_, err := f.svc.Start(ctx, "pizza")
		require.NoError(t, err)
		_, err = f.svc.Respond(ctx, "sess-1", flow.Response{Input: "Bob"})
		require.NoError(t, err)

		reply, err := f.svc.Respond(ctx, "sess-1", resp)
		require.NoError(t, err, "%+v", resp)
		assert.Equal(t, "4", reply.AwaitingInput.NodeID)
	}
}

func TestService_RejectedInputLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Start(ctx, "pizza")
	require.NoError(t, err)

	before, err := f.store.Load(ctx, "sess-1")
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{})
	assert.ErrorIs(t, err, domain.ErrInputRequired)
	var inputErr *domain.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "2", inputErr.NodeID)

	after, err := f.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.History, len(before.History))

	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{Input: "Alice"})
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{Option: "Medium"})
	assert.ErrorIs(t, err, domain.ErrInvalidBranchOption)
	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{Option: 7})
	assert.ErrorIs(t, err, domain.ErrInvalidBranchOption)
	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{})
	assert.ErrorIs(t, err, domain.ErrInputRequired)
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)

	_, err = f.svc.Respond(ctx, "ghost", flow.Response{Input: "hi"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.svc.History(ctx, "ghost", false)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestService_FinishedSessionIsStable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bots.Put(domain.Bot{ID: "hello", Flow: domain.Graph{Nodes: []domain.Node{
		{ID: "1", Type: domain.NodeTypeMessage, Data: domain.MessageData{Message: "Hello"}},
	}}})

	reply, err := f.svc.Start(ctx, "hello")
	require.NoError(t, err)
	assert.True(t, reply.Finished)
	require.Len(t, reply.Messages, 1)

	stored, err := f.store.Load(ctx, reply.SessionID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		again, err := f.svc.Respond(ctx, reply.SessionID, flow.Response{Input: "anything"})
		require.NoError(t, err)
		assert.True(t, again.Finished)
		assert.Empty(t, again.Messages)
		assert.Nil(t, again.AwaitingInput)
	}

	after, err := f.store.Load(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, stored.Version, after.Version)
}

func TestService_EmptyFlowFinishesImmediately(t *testing.T) {
	f := newFixture(t)
	f.bots.Put(domain.Bot{ID: "empty"})

	reply, err := f.svc.Start(context.Background(), "empty")
	require.NoError(t, err)
	assert.True(t, reply.Finished)
	assert.Empty(t, reply.Messages)
	assert.Empty(t, reply.Variables)
}

func TestService_MissingWaitingNode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Start(ctx, "pizza")
	require.NoError(t, err)

	// The flow is edited while the session waits on node 2.
	f.bots.Put(domain.Bot{ID: "pizza", Flow: domain.Graph{Nodes: []domain.Node{
		{ID: "1", Type: domain.NodeTypeMessage, Data: domain.MessageData{Message: "Welcome"}},
	}}})

	reply, err := f.svc.Respond(ctx, "sess-1", flow.Response{Input: "Alice"})
	require.NoError(t, err)
	assert.True(t, reply.Finished)
	assert.Equal(t, flow.NoticeMissingNode, reply.Notice)

	sess, err := f.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, sess.Finished)
}

func TestService_StepLimitEndsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, flow.WithEngine(runtime.NewEngine(runtime.WithMaxSteps(3))))
	f.bots.Put(domain.Bot{ID: "loop", Flow: domain.Graph{
		Nodes: []domain.Node{
			{ID: "1", Type: domain.NodeTypeMessage, Data: domain.MessageData{Message: "ping"}},
			{ID: "2", Type: domain.NodeTypeMessage, Data: domain.MessageData{Message: "pong"}},
		},
		Edges: []domain.Edge{{Source: "1", Target: "2"}, {Source: "2", Target: "1"}},
	}})

	reply, err := f.svc.Start(ctx, "loop")
	require.NoError(t, err)
	assert.True(t, reply.Finished)
	assert.NotEmpty(t, reply.Notice)
	assert.Len(t, reply.Messages, 3)
}

func TestService_History(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Start(ctx, "pizza")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{Input: "Alice"})
	require.NoError(t, err)

	full, err := f.svc.History(ctx, "sess-1", false)
	require.NoError(t, err)
	assert.Equal(t, "pizza", full.BotID)
	assert.Len(t, full.History, 5)

	clean, err := f.svc.History(ctx, "sess-1", true)
	require.NoError(t, err)
	require.Len(t, clean.History, 4)
	assert.Equal(t, "user_input", clean.History[2].Type)
	assert.Equal(t, "branch", clean.History[3].Type)
}

func TestService_Sessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bots.Put(domain.Bot{ID: "other"})

	for _, bot := range []string{"pizza", "other", "pizza"} {
		_, err := f.svc.Start(ctx, bot)
		require.NoError(t, err)
	}

	list, err := f.svc.Sessions(ctx, "pizza")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].CreatedAt.Before(list[1].CreatedAt))
	for _, s := range list {
		assert.Equal(t, "pizza", s.BotID)
	}

	_, err = f.svc.Sessions(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)
}

type recordingNotifier struct {
	mu    sync.Mutex
	diffs []*domain.SessionDiff
}

func (r *recordingNotifier) Notify(_ context.Context, diff *domain.SessionDiff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diffs = append(r.diffs, diff)
}

type recordingObserver struct {
	started, finished, rejected int
}

func (o *recordingObserver) SessionStarted(string)  { o.started++ }
func (o *recordingObserver) SessionFinished(string) { o.finished++ }
func (o *recordingObserver) InputRejected(string, domain.NodeType, error) {
	o.rejected++
}

func TestService_NotifiesDiffs(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	observer := &recordingObserver{}
	f := newFixture(t, flow.WithNotifier(notifier), flow.WithObserver(observer))

	_, err := f.svc.Start(ctx, "pizza")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{})
	require.Error(t, err)
	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{Input: "Alice"})
	require.NoError(t, err)

	require.Len(t, notifier.diffs, 2)
	first := notifier.diffs[0]
	assert.Equal(t, "sess-1", first.SessionID)
	require.NotNil(t, first.CurrentNodeID)
	assert.Equal(t, "2", *first.CurrentNodeID)
	assert.Len(t, first.History, 2)

	second := notifier.diffs[1]
	assert.Equal(t, "3", *second.CurrentNodeID)
	assert.Equal(t, map[string]any{"name": "Alice"}, second.Variables)
	assert.Len(t, second.History, 3)

	assert.Equal(t, 1, observer.started)
	assert.Equal(t, 1, observer.rejected)
	assert.Equal(t, 0, observer.finished)
}

func TestService_Resume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "pizza")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, "sess-1", flow.Response{Input: "Ana"})
	require.NoError(t, err)

	before, err := f.store.Load(ctx, "sess-1")
	require.NoError(t, err)

	reply, err := f.svc.Resume(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, reply.Messages, 1)
	assert.Equal(t, "Hi Ana, pick a size", reply.Messages[0].Content)
	assert.Equal(t, &flow.Awaiting{Type: domain.NodeTypeBranch, NodeID: "3", Options: []string{"Small", "Large"}}, reply.AwaitingInput)

	after, err := f.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)

	_, err = f.svc.Resume(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

const ageBot = `{
	"nodes": [
		{"id": "1", "type": "question", "data": {"message": "How old are you?", "variable": "age"}},
		{"id": "2", "type": "code", "data": {"code": "set('years', parseInt(get('age'))); set('later', () => 1); result = [get('years'), 1 / 0];", "timeout": 1000}},
		{"id": "3", "type": "message", "data": {"message": "Noted"}}
	],
	"edges": [
		{"source": "1", "target": "2"},
		{"source": "2", "target": "3", "sourceHandle": "success"}
	]
}`

func TestService_CodeResultsPersistToFileStore(t *testing.T) {
	ctx := context.Background()
	bots, err := memory.NewFromJSON(map[string]string{"age": ageBot})
	require.NoError(t, err)
	store := file.NewStore(t.TempDir())
	svc := flow.NewService(bots, session.NewManager(store))

	reply, err := svc.Start(ctx, "age")
	require.NoError(t, err)

	reply, err = svc.Respond(ctx, reply.SessionID, flow.Response{Input: "abc"})
	require.NoError(t, err)
	assert.True(t, reply.Finished)

	sess, err := store.Load(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.Finished)
	assert.Equal(t, "3", sess.CurrentNodeID)
	assert.Equal(t, "abc", sess.Variables["age"])
	assert.Contains(t, sess.Variables, "years")
	assert.Nil(t, sess.Variables["years"])
	assert.NotContains(t, sess.Variables, "later")
}

func TestService_FinishedOnStartIsObserved(t *testing.T) {
	ctx := context.Background()
	bots, err := memory.NewFromJSON(map[string]string{
		"hello": `{"nodes": [{"id": "1", "type": "message", "data": {"message": "Hi"}}], "edges": []}`,
		"empty": `{"nodes": [], "edges": []}`,
	})
	require.NoError(t, err)
	observer := &recordingObserver{}
	svc := flow.NewService(bots, session.NewManager(memory.NewStore()), flow.WithObserver(observer))

	for _, id := range []string{"hello", "empty"} {
		reply, err := svc.Start(ctx, id)
		require.NoError(t, err)
		assert.True(t, reply.Finished, id)
	}
	assert.Equal(t, 2, observer.started)
	assert.Equal(t, 2, observer.finished)
}
