/*
Package runner implements the interactive chat loop for the chatflow engine.

It acts as the bridge between the flow orchestrator and a terminal or a pipe.
The runner starts or resumes a session, shows each reply through a pluggable
handler and feeds user answers back until the conversation finishes.

# Key Components

  - Runner: The loop driving one session.
  - IOHandler: Decouples how replies are shown and answers are read.
  - TextHandler: Interactive terminal usage, with optional Markdown rendering.
  - JSONHandler: JSON-Lines for scripted clients.

# Usage

	r := runner.NewRunner(svc,
		runner.WithBotID("pizza"),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if _, err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
