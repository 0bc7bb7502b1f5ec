package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSessionStoreContract(t, store)
}

func TestMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	s := domain.NewSession("s", "bot")
	s.Variables["k"] = "v"
	require.NoError(t, store.Save(ctx, s))
	s.Variables["k"] = "mutated"

	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "v", loaded.Variables["k"])

	loaded.Append(domain.HistoryEntry{NodeID: "1"})
	again, _ := store.Load(ctx, "s")
	assert.Empty(t, again.History)
}
