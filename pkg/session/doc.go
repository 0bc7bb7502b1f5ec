/*
Package session implements session management and persistence orchestration.

A conversation may receive several responses at once (double-clicks, retries,
several replicas behind a load balancer). The Manager serializes every
read-modify-write cycle on one session with a reference-counted local mutex
and, when configured, a distributed lock, so a flow run always sees the
session exclusively.
*/
package session
