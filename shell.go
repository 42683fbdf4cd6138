package main

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively against one open club",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(a)
		},
	}
}

func runShell(a *app) error {
	prompt := a.interactive()
	if prompt {
		fmt.Fprintln(a.out, "Welcome to the book club!")
		if u, ok := a.club.CurrentUser(); ok {
			fmt.Fprintf(a.out, "Reading as %s.\n", u)
		} else {
			fmt.Fprintf(a.out, "Pick who you are first: user <%s>\n", userChoices())
		}
		fmt.Fprintln(a.out, `Type "help" for commands, "exit" to leave.`)
	}

	sc := a.lines()
	for {
		if prompt {
			fmt.Fprint(a.out, "\n> ")
		}
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
			continue
		}
		if len(args) > 0 && args[0] == "bookclub" {
			args = args[1:]
		}
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "exit", "quit":
			if prompt {
				fmt.Fprintln(a.out, "Goodbye!")
			}
			return nil
		case "shell":
			fmt.Fprintln(a.out, "Already in the shell.")
			continue
		}

		a.log.Debug("shell command", zap.Strings("args", args))
		if err := execute(a, args); err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
		}
	}
	return sc.Err()
}
