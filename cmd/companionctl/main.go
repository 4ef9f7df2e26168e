package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type command struct {
	name    string
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, env *environment, args []string) error
}

func commands() []*command {
	return []*command{
		setupCommand(),
		syncCommand(),
		importCommand(),
		logsCommand(),
		statusCommand(),
		intervalCommand(),
		profileCommand(),
		inspectCommand(),
		disconnectCommand(),
	}
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "companionctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return nil
	}

	var target *command
	for _, cmd := range commands() {
		if cmd.name == args[0] {
			target = cmd
			break
		}
	}
	if target == nil {
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	env := &environment{}
	flagSet := pflag.NewFlagSet(target.name, pflag.ContinueOnError)
	env.register(flagSet)
	if target.flags != nil {
		target.flags(flagSet)
	}
	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}
	return target.run(ctx, env, flagSet.Args())
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: companionctl <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	cmds := commands()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].name < cmds[j].name })
	for _, cmd := range cmds {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Run \"companionctl <command> --help\" for command flags.")
}
