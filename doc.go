/*
Package chatflow executes bot conversation flows for a multi-tenant chatbot platform.

A bot is a graph of nodes (message, question, confirmation, branch, code,
redirect) connected by edges. Each conversation is a Session that records its
current node, its variables and an append-only history. The engine walks the
graph until it reaches a node that needs user input or a dead end, persists
the session and returns everything the user should see.

# Architecture

The root Engine wires the hexagonal pieces together:

  - pkg/runtime walks the graph one run at a time.
  - pkg/flow is the orchestrator used by every transport (start, respond, history).
  - pkg/session serializes work per session and applies optimistic versioning.
  - pkg/sandbox runs code nodes in an isolated JavaScript VM.
  - pkg/adapters holds stores (memory, file, redis, sql) and transports (http, mcp).

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/chatflow"
		"github.com/aretw0/chatflow/pkg/flow"
	)

	func main() {
		// Bots are read from ./bots/<id>.json or .yaml
		eng, err := chatflow.New("./bots")
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		reply, err := eng.Start(ctx, "pizza")
		if err != nil {
			log.Fatal(err)
		}

		for !reply.Finished && reply.AwaitingInput != nil {
			for _, m := range reply.Messages {
				fmt.Println(m.Content)
			}
			// In a real app, this input comes from the user
			reply, err = eng.Respond(ctx, reply.SessionID, flow.Response{Input: "Margherita"})
			if err != nil {
				log.Fatal(err)
			}
		}
	}
*/
package chatflow
