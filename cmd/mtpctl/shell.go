package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/luck-mtp/mtp-go/pkg/mtp"
	"github.com/luck-mtp/mtp-go/pkg/persistence"
)

func newShellCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run an interactive session against one device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "mtp> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				AutoComplete:    shellCompleter(),
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()
			a.out = rl.Stdout()
			a.errOut = rl.Stderr()
			return a.runShell(cmd.Context(), rl)
		},
	}
}

func shellCompleter() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("cd"),
		readline.PcItem("pwd"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	}
	for _, op := range operations {
		items = append(items, readline.PcItem(op.name))
	}
	return readline.NewPrefixCompleter(items...)
}

// lineReader is the part of readline the shell loop needs.
type lineReader interface {
	Readline() (string, error)
}

func (a *app) runShell(ctx context.Context, rl lineReader) error {
	a.printShellHelp()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		quit, err := a.handleLine(ctx, line)
		if err != nil {
			fmt.Fprintf(a.errOut, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// handleLine runs one shell line. It reports whether the shell should exit.
func (a *app) handleLine(ctx context.Context, line string) (bool, error) {
	parts, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	if len(parts) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(parts[0]), parts[1:]

	switch name {
	case "help", "?":
		a.printShellHelp()
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	case "pwd":
		fmt.Fprintln(a.out, a.cwd)
		return false, nil
	case "cd":
		return false, a.changeDir(ctx, args)
	}

	op, ok := findOperation(name)
	if !ok {
		return false, fmt.Errorf("unknown command: %s (type 'help' for commands)", name)
	}
	return false, a.exec(ctx, op, args)
}

func (a *app) changeDir(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return errors.New("usage: cd [path]")
	}
	target := "/"
	if len(args) == 1 {
		target = a.abs(args[0])
	}
	s, err := a.connect(ctx)
	if err != nil {
		return err
	}
	if target != "/" {
		rec, err := s.Resolve(ctx, target)
		if err != nil {
			return err
		}
		if !rec.IsFolder() {
			return fmt.Errorf("cd %s: %w", target, mtp.ErrNotAFolder)
		}
	}
	a.cwd = target
	a.remember(func(r *persistence.DeviceRecord) { r.Cwd = target })
	return nil
}

func (a *app) printShellHelp() {
	fmt.Fprintln(a.out, "MTP shell commands:")
	fmt.Fprintf(a.out, "  %-36s %s\n", "cd [path]", "Change the working folder")
	fmt.Fprintf(a.out, "  %-36s %s\n", "pwd", "Print the working folder")
	for _, op := range operations {
		fmt.Fprintf(a.out, "  %-36s %s\n", strings.TrimSpace(op.name+" "+op.args), op.short)
	}
	fmt.Fprintf(a.out, "  %-36s %s\n", "exit", "Leave the shell")
}

// splitArgs splits a shell line on spaces. Double quotes group words and
// a backslash escapes the next character.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		started bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped, started = true, true
		case r == '"':
			inQuote, started = !inQuote, true
		case (r == ' ' || r == '\t') && !inQuote:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote || escaped {
		return nil, errors.New("unterminated quote or escape")
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}
