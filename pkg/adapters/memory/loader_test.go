package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotProvider(t *testing.T) {
	p, err := memory.NewFromJSON(map[string]string{
		"support": `{"nodes": [{"id": 1, "type": "message", "data": {"message": "hi"}}], "edges": []}`,
		"sales":   `{"nodes": [], "edges": []}`,
	})
	require.NoError(t, err)
	ctx := context.Background()

	bot, err := p.Bot(ctx, "support")
	require.NoError(t, err)
	require.Len(t, bot.Flow.Nodes, 1)
	assert.Equal(t, "1", bot.Flow.Nodes[0].ID)

	_, err = p.Bot(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrBotNotFound)

	p.Put(domain.Bot{ID: "another"})
	ids, err := p.ListBots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"another", "sales", "support"}, ids)

	_, err = memory.NewFromJSON(map[string]string{"bad": `{`})
	assert.Error(t, err)
}
