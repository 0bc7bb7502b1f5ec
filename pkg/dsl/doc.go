/*
Package dsl builds conversation flows in Go instead of JSON or YAML documents.

It is useful for tests, generated bots and IDE-checked flows. Nodes are added
in declaration order; the first node added is the entry point unless a node
with id "1" exists.

Example usage:

	b := dsl.New("pizza").Name("Pizza Bot")

	b.Message("1", "Welcome to Pizza!").Go("2")
	b.Question("2", "What is your name?", "name").Go("3")
	b.Branch("3", "Which size, {name}?").
		Option("Small", "4").
		Option("Large", "5")
	b.Message("4", "A small one it is.")
	b.Message("5", "A large one it is.")

	provider, err := b.Provider()
	if err != nil {
		log.Fatal(err)
	}
	engine, err := chatflow.New("", chatflow.WithBotProvider(provider))
*/
package dsl
