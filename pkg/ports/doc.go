/*
Package ports defines the driven ports (interfaces) for the chatflow engine.

These interfaces decouple the orchestration logic from external implementations,
allowing flows to run against various storage backends and bot sources.

# Key Interfaces

  - BotProvider: Supplies bots and their flow graphs by bot ID.
  - SessionStore: Persists and loads conversation sessions.
  - DistributedLocker: Provides distributed locking for concurrent access to one session.
*/
package ports
