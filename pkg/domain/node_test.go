package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/domain"
)

func TestNode_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want domain.Node
	}{
		{
			name: "numeric id",
			doc:  `{"id": 1, "type": "message", "data": {"message": "hi"}}`,
			want: domain.Node{ID: "1", Type: domain.NodeTypeMessage, Data: domain.MessageData{Message: "hi"}},
		},
		{
			name: "question",
			doc:  `{"id": "q", "type": "question", "data": {"message": "Name?", "variable": "name"}}`,
			want: domain.Node{ID: "q", Type: domain.NodeTypeQuestion, Data: domain.QuestionData{Message: "Name?", Variable: "name"}},
		},
		{
			name: "branch options",
			doc:  `{"id": "b", "type": "branch", "data": {"message": "Pick", "options": ["A", "B"]}}`,
			want: domain.Node{ID: "b", Type: domain.NodeTypeBranch, Data: domain.BranchData{Message: "Pick", Options: []string{"A", "B"}}},
		},
		{
			name: "code timeout as string",
			doc:  `{"id": "c", "type": "code", "data": {"code": "result = 1", "timeout": "250"}}`,
			want: domain.Node{ID: "c", Type: domain.NodeTypeCode, Data: domain.CodeData{Code: "result = 1", Timeout: 250}},
		},
		{
			name: "redirect",
			doc:  `{"id": "r", "type": "redirect", "data": {"redirectUrl": "https://example.com"}}`,
			want: domain.Node{ID: "r", Type: domain.NodeTypeRedirect, Data: domain.RedirectData{RedirectURL: "https://example.com"}},
		},
		{
			name: "missing data",
			doc:  `{"id": "m", "type": "message"}`,
			want: domain.Node{ID: "m", Type: domain.NodeTypeMessage, Data: domain.MessageData{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n domain.Node
			require.NoError(t, json.Unmarshal([]byte(tt.doc), &n))
			assert.Equal(t, tt.want, n)
			assert.Equal(t, tt.want.Type, n.Kind())
		})
	}
}

func TestNode_UnknownTypeKeepsPayload(t *testing.T) {
	var n domain.Node
	require.NoError(t, json.Unmarshal([]byte(`{"id": 9, "type": "carousel", "data": {"items": ["a"]}}`), &n))

	assert.Equal(t, domain.NodeType("carousel"), n.Type)
	assert.Equal(t, domain.NodeTypeUnknown, n.Kind())
	data, ok := n.Data.(domain.UnknownData)
	require.True(t, ok)
	assert.Equal(t, []any{"a"}, data["items"])
}

func TestGraph_RoundTrip(t *testing.T) {
	doc := `{
		"nodes": [{"id": 1, "type": "confirmation", "data": {"message": "Sure?"}}],
		"edges": [{"id": 10, "source": 1, "target": 2, "sourceHandle": "yes"}]
	}`
	var g domain.Graph
	require.NoError(t, json.Unmarshal([]byte(doc), &g))
	assert.Equal(t, domain.Edge{ID: "10", Source: "1", Target: "2", SourceHandle: "yes"}, g.Edges[0])

	b, err := json.Marshal(g)
	require.NoError(t, err)
	var again domain.Graph
	require.NoError(t, json.Unmarshal(b, &again))
	assert.Equal(t, g, again)
}

func TestCodeData_TimeoutDuration(t *testing.T) {
	assert.Equal(t, domain.DefaultCodeTimeout, domain.CodeData{}.TimeoutDuration())
	assert.Equal(t, 250*time.Millisecond, domain.CodeData{Timeout: 250}.TimeoutDuration())
}

func TestBranchOptionID(t *testing.T) {
	assert.Equal(t, "7-opt-2", domain.BranchOptionID("7", 2))
}

func TestSession_Snapshot(t *testing.T) {
	s := domain.NewSession("s1", "bot")
	s.Variables["name"] = "Ada"
	s.Append(domain.HistoryEntry{NodeID: "1", Type: "message", Content: "hi"})

	snap := s.Snapshot()
	snap.Variables["name"] = "Grace"
	snap.Append(domain.HistoryEntry{NodeID: "2"})

	assert.Equal(t, "Ada", s.Variables["name"])
	assert.Len(t, s.History, 1)
	assert.Len(t, snap.History, 2)
}

func TestInputError_Unwrap(t *testing.T) {
	err := &domain.InputError{NodeID: "q", Reason: "input is required", Err: domain.ErrInputRequired}
	assert.ErrorIs(t, err, domain.ErrInputRequired)
	assert.Equal(t, "node q: input is required", err.Error())
}
