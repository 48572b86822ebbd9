// aiticket is a terminal client for the AI support-ticket service. It signs
// in, classifies issue descriptions, files tickets, collects satisfaction
// ratings and reports dashboard statistics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/godilite/aiticket/internal/app"
	"github.com/godilite/aiticket/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string, in io.Reader, out io.Writer) error {
	_ = godotenv.Load(".env")

	var verbose bool
	flagSet := pflag.NewFlagSet("aiticket", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(argv); err != nil {
		return err
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return pflag.ErrHelp
	}
	cmd, ok := lookup(args[0])
	if !ok {
		printHelp(flagSet)
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg := config.LoadFromEnv()

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if !verbose {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cmd.name == "monitor" {
		return application.Run(ctx)
	}
	defer application.Close()

	e := &env{
		ws:  application.Workspace(),
		in:  in,
		out: out,
	}
	return cmd.run(ctx, e, args[1:])
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `aiticket: AI-assisted support tickets from the terminal.

Usage:
  aiticket [--verbose] <command> [flags] [args]

Commands:
`)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, `
Configuration is read from the environment and an optional .env file
(API_URL, TOKEN_STORE, TOKEN_DB_PATH, REDIS_ADDR, ...).

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
