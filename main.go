package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digido/cmd"
	"digido/database"
)

func main() {
	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error:", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatal("Application error:", err)
	}
}

func run(ctx context.Context) error {
	command := "tick"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "tick":
		return cmd.RunTick(ctx)
	case "daemon":
		return cmd.RunDaemon(ctx)
	case "run-user":
		return handleRunUserCommand(ctx)
	default:
		return fmt.Errorf("unknown command: %s (expected tick, daemon, run-user or migrate)", command)
	}
}

func handleRunUserCommand(ctx context.Context) error {
	flags := flag.NewFlagSet("run-user", flag.ExitOnError)
	dateArg := flags.String("date", "", "logical summary date (YYYY-MM-DD, default today UTC)")
	noSend := flags.Bool("no-send", false, "generate and archive the summary without sending notifications")
	if err := flags.Parse(os.Args[2:]); err != nil {
		return err
	}

	if flags.NArg() != 1 {
		return fmt.Errorf("usage: digido run-user [--date YYYY-MM-DD] [--no-send] <user-id>")
	}
	userID := flags.Arg(0)

	summaryDate := time.Now().UTC().Truncate(24 * time.Hour)
	if *dateArg != "" {
		parsed, err := time.Parse("2006-01-02", *dateArg)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", *dateArg, err)
		}
		summaryDate = parsed
	}

	return cmd.RunUser(ctx, userID, summaryDate, !*noSend)
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: digido migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
