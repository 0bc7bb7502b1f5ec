/*
Package domain contains the core models of the chatflow engine.

It defines the conversation graph authored for a bot, the resumable session that
walks it, and the transient records an engine run produces. The package is kept
free of I/O and persistence concerns.

# Key Entities

  - Graph: Nodes and labeled Edges authored for one bot. Read-only during a run.
  - Node: A typed step in the conversation. Its payload is a closed set of NodeData variants.
  - Session: The resumable execution state of one user's conversation (current node, variables, history).
  - RunResult: What a single engine invocation produced (outputs, pause descriptor, updated variables).
*/
package domain
