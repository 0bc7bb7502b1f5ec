package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// BotProvider supplies bot definitions. Graphs it returns are treated as
// immutable for the duration of a run.
type BotProvider interface {
	// Bot returns the bot with the given ID, or domain.ErrBotNotFound.
	Bot(ctx context.Context, botID string) (*domain.Bot, error)

	// ListBots returns the IDs of all known bots.
	ListBots(ctx context.Context) ([]string, error)
}
