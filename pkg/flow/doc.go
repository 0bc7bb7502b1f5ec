/*
Package flow implements the session orchestrator: it turns start and respond
requests into engine runs, records the outcome in the session history and
formats what the user should see next.

A start request loads the bot's graph, runs it from the start node and saves a
new session. A respond request resolves the node the session is waiting on,
validates the user's input against it and resumes the run from there. Input
that does not satisfy the waiting node is rejected with a *domain.InputError
and leaves the session untouched.
*/
package flow
