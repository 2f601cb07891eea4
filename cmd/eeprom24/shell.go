package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// shell runs an interactive command loop on the session's device.
func (s *session) shell(ctx context.Context) error {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+2)
	for _, c := range commands {
		items = append(items, readline.PcItem(c.name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.dev.Name() + "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	s.out = rl.Stdout()
	return s.loop(ctx, rl.Readline, rl.Stderr())
}

// loop reads lines from next until EOF, exit or cancellation.
func (s *session) loop(ctx context.Context, next func() (string, error), stderr io.Writer) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := next()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch strings.ToLower(args[0]) {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			for _, c := range commands {
				fmt.Fprintf(s.out, "  %-28s %s\n", c.usage, c.help)
			}
			continue
		}

		if err := s.execute(args); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
	}
}
