package dsl

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/graph"
)

// Builder manages the graph construction.
// Nodes keep their declaration order, which is the order the engine scans
// when it falls back to the first node as the start node.
type Builder struct {
	bot   domain.Bot
	order []string
	nodes map[string]*NodeBuilder
	errs  []error
}

// New creates a builder for the bot with the given ID.
func New(botID string) *Builder {
	return &Builder{
		bot:   domain.Bot{ID: botID},
		nodes: make(map[string]*NodeBuilder),
	}
}

// Name sets the display name of the bot.
func (b *Builder) Name(name string) *Builder {
	b.bot.Name = name
	return b
}

// Description sets the bot description.
func (b *Builder) Description(desc string) *Builder {
	b.bot.Description = desc
	return b
}

// Message adds a node that emits text and continues.
func (b *Builder) Message(id, text string) *NodeBuilder {
	return b.add(id, domain.MessageData{Message: text})
}

// Question adds a node that stores the user's answer in variable.
func (b *Builder) Question(id, text, variable string) *NodeBuilder {
	return b.add(id, domain.QuestionData{Message: text, Variable: variable})
}

// Confirm adds a yes/no node. Route it with Yes and No.
func (b *Builder) Confirm(id, text string) *NodeBuilder {
	return b.add(id, domain.ConfirmationData{Message: text})
}

// Branch adds a multiple choice node. Declare its options with Option.
func (b *Builder) Branch(id, text string) *NodeBuilder {
	return b.add(id, domain.BranchData{Message: text})
}

// Code adds a script node. Route it with Go, or with OnSuccess and Error.
func (b *Builder) Code(id, script string) *NodeBuilder {
	return b.add(id, domain.CodeData{Code: script})
}

// Redirect adds a terminal node pointing the user to url.
func (b *Builder) Redirect(id, url string) *NodeBuilder {
	return b.add(id, domain.RedirectData{RedirectURL: url})
}

func (b *Builder) add(id string, data domain.NodeData) *NodeBuilder {
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Type: data.Kind(), Data: data},
		builder: b,
	}
	if _, dup := b.nodes[id]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q declared twice", id))
		return nb
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Graph returns the flow built so far without validating it.
func (b *Builder) Graph() domain.Graph {
	var g domain.Graph
	for _, id := range b.order {
		nb := b.nodes[id]
		g.Nodes = append(g.Nodes, nb.node)
		g.Nodes = append(g.Nodes, nb.options...)
		g.Edges = append(g.Edges, nb.edges...)
	}
	for i := range g.Edges {
		g.Edges[i].ID = fmt.Sprintf("e%d", i+1)
	}
	return g
}

// Build validates the flow and returns the bot.
func (b *Builder) Build() (*domain.Bot, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	g := b.Graph()
	if err := graph.Validate(g); err != nil {
		return nil, fmt.Errorf("bot %s: %w", b.bot.ID, err)
	}
	bot := b.bot
	bot.Flow = g
	return &bot, nil
}

// Provider builds the bot and serves it from memory.
func (b *Builder) Provider() (*memory.BotProvider, error) {
	bot, err := b.Build()
	if err != nil {
		return nil, err
	}
	return memory.NewBotProvider(*bot), nil
}
