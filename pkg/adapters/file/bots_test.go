package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/domain"
)

const yamlBot = `
id: pizza
name: Pizza Bot
conversationFlow:
  nodes:
    - id: 1
      type: message
      data:
        message: Welcome
    - id: 2
      type: code
      data:
        code: "set('x', 1)"
        timeout: 200
  edges:
    - source: 1
      target: 2
`

const jsonGraph = `{
	"nodes": [{"id": "1", "type": "question", "data": {"message": "Name?", "variable": "name"}}],
	"edges": []
}`

func writeBots(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pizza.yaml"), []byte(yamlBot), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeter.json"), []byte(jsonGraph), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# bots"), 0644))
	return dir
}

func TestBotProvider_LoadsYAMLAndJSON(t *testing.T) {
	p := file.NewBotProvider(writeBots(t))
	ctx := context.Background()

	ids, err := p.ListBots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"greeter", "pizza"}, ids)

	pizza, err := p.Bot(ctx, "pizza")
	require.NoError(t, err)
	assert.Equal(t, "Pizza Bot", pizza.Name)
	require.Len(t, pizza.Flow.Nodes, 2)
	assert.Equal(t, "1", pizza.Flow.Nodes[0].ID)
	assert.Equal(t, domain.MessageData{Message: "Welcome"}, pizza.Flow.Nodes[0].Data)
	code, ok := pizza.Flow.Nodes[1].Data.(domain.CodeData)
	require.True(t, ok)
	assert.Equal(t, "set('x', 1)", code.Code)
	require.Len(t, pizza.Flow.Edges, 1)
	assert.Equal(t, "2", pizza.Flow.Edges[0].Target)

	greeter, err := p.Bot(ctx, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "greeter", greeter.ID)
	assert.Equal(t, domain.NodeTypeQuestion, greeter.Flow.Nodes[0].Kind())
}

func TestBotProvider_NotFound(t *testing.T) {
	p := file.NewBotProvider(writeBots(t))
	for _, id := range []string{"ghost", "", "../pizza", "README"} {
		_, err := p.Bot(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrBotNotFound, id)
	}
}

func TestParseBot_Invalid(t *testing.T) {
	_, err := file.ParseBot([]byte("not json"))
	assert.Error(t, err)
}
