package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
)

// BotProvider implements ports.BotProvider over bots held in memory.
type BotProvider struct {
	mu   sync.RWMutex
	bots map[string]domain.Bot
}

// NewBotProvider creates a provider serving the given bots.
func NewBotProvider(bots ...domain.Bot) *BotProvider {
	p := &BotProvider{bots: make(map[string]domain.Bot, len(bots))}
	for _, b := range bots {
		p.bots[b.ID] = b
	}
	return p
}

// NewFromJSON creates a provider from flow graph documents keyed by bot ID.
// This improves DX for tests.
func NewFromJSON(graphs map[string]string) (*BotProvider, error) {
	p := NewBotProvider()
	for id, doc := range graphs {
		var g domain.Graph
		if err := json.Unmarshal([]byte(doc), &g); err != nil {
			return nil, fmt.Errorf("bot %s: %w", id, err)
		}
		p.bots[id] = domain.Bot{ID: id, Flow: g}
	}
	return p, nil
}

// Put adds or replaces a bot.
func (p *BotProvider) Put(bot domain.Bot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bots[bot.ID] = bot
}

// Bot returns the bot with the given ID.
func (p *BotProvider) Bot(ctx context.Context, botID string) (*domain.Bot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bot, ok := p.bots[botID]
	if !ok {
		return nil, domain.ErrBotNotFound
	}
	return &bot, nil
}

// ListBots returns all bot IDs.
func (p *BotProvider) ListBots(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.bots))
	for k := range p.bots {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
