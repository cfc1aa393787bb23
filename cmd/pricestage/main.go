package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/coachpo/pricestage/internal/infra/config"
)

const (
	defaultConfigPath = "config/app.yaml"
	loggerPrefix      = "pricestage "
)

type command struct {
	usage string
	run   func(ctx context.Context, rt *runtime, args []string, out io.Writer) error
}

var commands = map[string]command{
	"stage":    {usage: "stage -dataset <name> -actor <id> -file <csv>", run: runStage},
	"diff":     {usage: "diff -dataset <name>", run: runDiff},
	"promote":  {usage: "promote -dataset <name> -actor <id> [-ack] [-expect-version n]", run: runPromote},
	"rollback": {usage: "rollback -dataset <name> -actor <id>", run: runRollback},
	"show":     {usage: "show -dataset <name> [-slot staging|production|backup]", run: runShow},
	"history":  {usage: "history [-dataset <name>] [-limit n]", run: runHistory},
}

func main() {
	ctx, stop := newSignalContext()
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pricestage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	fs.Usage = func() { printUsage(fs) }
	if err := fs.Parse(argv); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("command required")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}

	logger := log.New(stderr, loggerPrefix, log.LstdFlags|log.Lmicroseconds)
	path := resolveConfigPath(*cfgPath)
	cfg, loaded, err := config.LoadOrDefault(ctx, path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !loaded {
		logger.Printf("configuration file not found, using defaults: path=%s", path)
	}

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	return cmd.run(ctx, rt, rest[1:], stdout)
}

func printUsage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: pricestage [-config path] <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", commands[name].usage)
	}
	fs.PrintDefaults()
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("PRICESTAGE_CONFIG"); env != "" {
		return env
	}
	return filepath.Clean(defaultConfigPath)
}
