package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/chatflow/pkg/domain"
)

// BotProvider implements ports.BotProvider over a directory of bot
// definitions. Each *.json, *.yaml or *.yml file holds one bot; its ID
// defaults to the file name without extension.
//
// Files are read on every call so edits are picked up without a restart.
type BotProvider struct {
	Dir string
}

// NewBotProvider creates a provider reading from dir.
func NewBotProvider(dir string) *BotProvider {
	return &BotProvider{Dir: dir}
}

var botExtensions = []string{".json", ".yaml", ".yml"}

// Bot loads the bot with the given ID.
func (p *BotProvider) Bot(ctx context.Context, botID string) (*domain.Bot, error) {
	if botID == "" || strings.ContainsAny(botID, `/\`) || botID == "." || botID == ".." {
		return nil, domain.ErrBotNotFound
	}
	for _, ext := range botExtensions {
		path := filepath.Join(p.Dir, botID+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadBot(path)
	}
	return nil, domain.ErrBotNotFound
}

// ListBots returns the IDs of all bot files in the directory.
func (p *BotProvider) ListBots(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}

	seen := make(map[string]bool)
	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !isBotFile(ext) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func isBotFile(ext string) bool {
	for _, e := range botExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// LoadBot reads a single bot definition. The document is either a bot
// ({id, name, conversationFlow}) or a bare flow graph ({nodes, edges}).
func LoadBot(path string) (*domain.Bot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	bot, err := ParseBot(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if bot.ID == "" {
		bot.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return bot, nil
}

// ParseBot decodes a JSON bot document or bare flow graph.
func ParseBot(data []byte) (*domain.Bot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid bot document: %w", err)
	}

	if _, ok := fields["conversationFlow"]; !ok {
		if _, hasNodes := fields["nodes"]; hasNodes {
			var g domain.Graph
			if err := json.Unmarshal(data, &g); err != nil {
				return nil, fmt.Errorf("invalid flow graph: %w", err)
			}
			return &domain.Bot{Flow: g}, nil
		}
	}

	var bot domain.Bot
	if err := json.Unmarshal(data, &bot); err != nil {
		return nil, fmt.Errorf("invalid bot document: %w", err)
	}
	return &bot, nil
}

// yamlToJSON lets YAML bot files share the JSON decoding of nodes and edges.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return json.Marshal(doc)
}
