// Command jntimsctl runs operator tasks against the configured backends.
//
//	jntimsctl verify [-json]
//	jntimsctl jobs trigger <analytics:warmup|ledger:verify|idempotency:cleanup>
//	jntimsctl jobs stats
//	jntimsctl jobs scheduled [-n 10]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jntims/jntims/cmd/jntimsctl/cli"
	"github.com/jntims/jntims/internal/app"
)

func main() {
	if app.InTestMode() {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		usage()
		return 64
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	cfg.LogFormat = "text"
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "verify":
		fs := flag.NewFlagSet("verify", flag.ContinueOnError)
		jsonOut := fs.Bool("json", false, "print the report as JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 64
		}
		backends, err := app.OpenBackends(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open backends: %v\n", err)
			return 1
		}
		defer backends.Close()
		services := app.NewServices(cfg, backends, logger)
		return cli.VerifyCommand(ctx, services.Analytics, cli.VerifyOptions{JSONOutput: *jsonOut, Stdout: os.Stdout, Stderr: os.Stderr})
	case "jobs":
		return runJobs(ctx, cfg, args[1:])
	default:
		usage()
		return 64
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		usage()
		return 64
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			slog.Default().Warn("close jobs cli", slog.Any("error", err))
		}
	}()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			usage()
			return 64
		}
		info, err := jobsCLI.Trigger(ctx, args[1], cfg.IdempotencyTTL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		_ = enc.Encode(stats)
	case "scheduled":
		fs := flag.NewFlagSet("scheduled", flag.ContinueOnError)
		size := fs.Int("n", 10, "page size")
		if err := fs.Parse(args[1:]); err != nil {
			return 64
		}
		tasks, err := jobsCLI.ListScheduled(ctx, *size)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
		}
	default:
		usage()
		return 64
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: jntimsctl verify [-json] | jobs trigger <name> | jobs stats | jobs scheduled [-n N]")
}
