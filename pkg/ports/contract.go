package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405.000000")

	t.Run("Save and Load", func(t *testing.T) {
		s := domain.NewSession(sessionID, "bot-1")
		s.CurrentNodeID = "2"
		s.Variables["name"] = "Ada"
		s.Variables["count"] = 42
		s.Append(
			domain.HistoryEntry{NodeID: "1", Type: "message", Content: "hello", Timestamp: time.Now().UTC()},
			domain.HistoryEntry{NodeID: "2", Type: "question", Content: "Name?", Timestamp: time.Now().UTC(), AwaitingInput: true},
		)

		require.NoError(t, store.Save(ctx, s), "Save should not return error")
		assert.Equal(t, int64(1), s.Version, "Save should bump the version")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "bot-1", loaded.BotID)
		assert.Equal(t, "2", loaded.CurrentNodeID)
		assert.Equal(t, "Ada", loaded.Variables["name"])
		// JSON persistence may turn numbers into float64.
		assert.EqualValues(t, 42, loaded.Variables["count"])
		require.Len(t, loaded.History, 2)
		assert.Equal(t, "hello", loaded.History[0].Content)
		assert.True(t, loaded.History[1].AwaitingInput)
		assert.False(t, loaded.Finished)
		assert.Equal(t, int64(1), loaded.Version)

		loaded.Finished = true
		require.NoError(t, store.Save(ctx, loaded))
		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, again.Finished)
		assert.Equal(t, int64(2), again.Version)
	})

	t.Run("Stale Save", func(t *testing.T) {
		first, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		second, err := store.Load(ctx, sessionID)
		require.NoError(t, err)

		first.Variables["winner"] = "first"
		require.NoError(t, store.Save(ctx, first))

		second.Variables["winner"] = "second"
		assert.ErrorIs(t, store.Save(ctx, second), domain.ErrVersionConflict)

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "first", loaded.Variables["winner"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, domain.NewSession(id1, "bot-1")))
		require.NoError(t, store.Save(ctx, domain.NewSession(id2, "bot-1")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, sessionID), "Deleting twice should not fail")
	})
}
