// Command sdb is the interactive source-level debugger's REPL shell: a thin
// collaborator around internal/session that parses commands, drives the
// debug session, and renders its structured stop/termination events.
//
// Grounded in main.go's runtime.LockOSThread()+flag-loop shape, generalized
// from flag to cobra and from goreadline to chzyer/readline per
// SPEC_FULL.md's AMBIENT STACK.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/d4ckard/spray/internal/config"
	"github.com/d4ckard/spray/internal/logging"
	"github.com/d4ckard/spray/internal/session"
)

const historyFile = ".sdb_history"

func main() {
	// ptrace(2) requires every trace call to come from the thread that did
	// PTRACE_ATTACH/PTRACE_TRACEME.
	runtime.LockOSThread()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sdb <program> [args...]",
		Short: "interactive source-level debugger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger := logging.New(logging.Options{Level: logging.LevelFromString(cfg.LogLevel), JSON: cfg.LogFormat == "json"})
			return run(args[0], args[1:], logger)
		},
	}
	return cmd
}

func run(program string, args []string, logger *slog.Logger) error {
	sess, entryEv, err := session.Start(program, args)
	if err != nil {
		return fmt.Errorf("could not start session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Error("closing session", "error", err)
		}
	}()

	printStop(entryEv)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sdb> ",
		HistoryFile:     historyFile,
		HistoryLimit:    1000,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("could not start readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return nil
		}

		name, cmdArgs := parseCommand(line)
		if name == "" {
			continue
		}
		sess.History.Record(line)

		if name == "quit" {
			return nil
		}

		done, err := dispatch(sess, name, cmdArgs)
		if err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if done {
			return nil
		}
	}
}
