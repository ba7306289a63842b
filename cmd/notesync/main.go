package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/koffeedonut/notesync/internal/api"
	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/feed"
	"github.com/koffeedonut/notesync/internal/ledger"
	"github.com/koffeedonut/notesync/internal/models"
	"github.com/koffeedonut/notesync/internal/ops"
	"github.com/koffeedonut/notesync/internal/reactions"
	"github.com/koffeedonut/notesync/internal/storage"
	"github.com/koffeedonut/notesync/internal/uploads"
	"github.com/koffeedonut/notesync/internal/views"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

func main() {
	// Define subcommands
	if len(os.Args) > 1 && os.Args[1] == "init" {
		handleInit()
		return
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("notesync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  by:     %s\n", builtBy)
		os.Exit(0)
	}

	// Session credentials may live in a .env next to the binary
	_ = godotenv.Load()

	if *configPath == "" {
		fmt.Println("notesync - Feed Sync and Optimistic Interaction Engine")
		fmt.Println()
		fmt.Println("No configuration file specified. Use --config <path> to specify config.")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  notesync init              Generate example configuration")
		fmt.Println("  notesync --version         Show version information")
		fmt.Println("  notesync --config <path>   Start with configuration file")
		os.Exit(1)
	}

	// Load and validate configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting notesync %s\n", version)
	fmt.Printf("  Remote: %s\n", cfg.Remote.BaseURL)
	if cfg.Session.Username != "" {
		fmt.Printf("  User: %s\n", cfg.Session.Username)
	} else {
		fmt.Println("  User: (anonymous)")
	}
	fmt.Println()

	// Run the application
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)
	logger.LogStartup(version, commit)

	// Initialize local storage
	fmt.Println("Initializing storage...")
	st, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer st.Close()
	fmt.Printf("  Storage: %s initialized\n", cfg.Storage.Driver)

	// Initialize TTL ledgers
	fmt.Println("Initializing ledgers...")
	viewLedger, err := ledger.New("views", cfg.Views.TTL(), &cfg.Ledger, st)
	if err != nil {
		return fmt.Errorf("failed to initialize view ledger: %w", err)
	}
	visitedLedger, err := ledger.New("visited", cfg.Views.VisitedTTL(), &cfg.Ledger, st)
	if err != nil {
		return fmt.Errorf("failed to initialize visited ledger: %w", err)
	}
	fmt.Printf("  Ledger engine: %s\n", cfg.Ledger.Engine)

	// Initialize remote API client
	client := api.New(&cfg.Remote, &cfg.Session, logger)

	// Initialize view throttle
	throttle := views.NewThrottle(viewLedger, visitedLedger, &cfg.Views, client, logger)

	// Startup housekeeping: sweep expired throttle entries
	removed, err := throttle.SweepExpired(ctx)
	if err != nil {
		fmt.Printf("  ⚠ Ledger sweep failed: %v\n", err)
	} else if removed > 0 {
		fmt.Printf("  ✓ Ledger sweep complete: %d entries removed\n", removed)
	}

	// Initialize upload tracker
	tracker := uploads.NewTracker(st, client, logger)
	if cfg.Uploads.CleanupOnStart {
		fmt.Println("  Running abandoned upload cleanup...")
		deleted, err := tracker.CleanupAbandoned(ctx)
		if err != nil {
			fmt.Printf("  ⚠ Upload cleanup failed, will retry: %v\n", err)
		} else if deleted > 0 {
			fmt.Printf("  ✓ Upload cleanup complete: %d objects deleted\n", deleted)
		}
	}

	// Initialize feed engine
	fmt.Println("Initializing feed engine...")
	engine, err := feed.NewEngine(ctx, client, st, &cfg.Feeds, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize feed engine: %w", err)
	}

	// Initialize reaction state machine and wire it to the feed cache
	machine := reactions.NewMachine(&cfg.Session, client, logger)
	machine.SetBaselineSource(engine.Note)
	machine.SetInvalidator(engine.Invalidate)
	engine.SetNoteObserver(machine.Seed)
	fmt.Println("  Feed engine ready")

	// Initial load of the default view
	if err := engine.LoadInitial(ctx, models.ViewRecent); err != nil {
		// Keep running; restored snapshots still serve the cached list.
		fmt.Printf("  ⚠ Initial feed load failed: %v\n", err)
	} else {
		snap := engine.View(models.ViewRecent)
		fmt.Printf("  ✓ Loaded %d notes (has more: %v)\n", len(snap.Items), snap.HasMore)
	}

	fmt.Println()
	fmt.Println("✓ All services started successfully!")
	fmt.Println()
	fmt.Println("Press Ctrl+C to shutdown gracefully...")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println()
	fmt.Println("Shutting down gracefully...")
	logger.LogShutdown("signal")

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := engine.Flush(flushCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing feed snapshots: %v\n", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading example config: %v\n", err)
		os.Exit(1)
	}

	// Write to stdout
	fmt.Print(string(exampleConfig))
}
