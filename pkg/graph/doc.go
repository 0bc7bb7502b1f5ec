/*
Package graph provides read-only lookups over a conversation flow graph.

An Index maps node ids to nodes and resolves outgoing edges, optionally
disambiguated by an edge handle. All functions are pure; an Index may be built
once per bot and shared between concurrent sessions.
*/
package graph
