// Command citysim runs the settlement economy: an HTTP API for chat bots, a
// local interactive client, and catalog/archive inspection tools.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/talgya/mini-city/internal/api"
	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/eventlog"
	"github.com/talgya/mini-city/internal/persistence"
)

var (
	configFile string
	seed       int64
	verbose    bool

	port       int
	dataDir    string
	sweepEvery time.Duration
	noArchive  bool

	owner string
	name  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "citysim",
		Short: "Settlement economy engine for chat-bot city builders",
		Long: `citysim keeps one small town per chat or player. Buildings produce
food, wood, stone and gold over wall-clock time; settlers eat, starve,
arrive and move into new houses.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: level,
			}))
			slog.SetDefault(logger)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to balance YAML (default: built-in balance)")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Override the balance file's random seed")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the background sweeper",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port")
	serveCmd.Flags().StringVarP(&dataDir, "data", "d", "data", "Directory for the database and event archive")
	serveCmd.Flags().DurationVar(&sweepEvery, "sweep", time.Minute, "Interval between settlement sweeps")
	serveCmd.Flags().BoolVar(&noArchive, "no-archive", false, "Do not write the compressed event archive")

	playCmd := &cobra.Command{
		Use:   "play",
		Short: "Play a settlement in the terminal",
		RunE:  runPlay,
	}
	playCmd.Flags().StringVarP(&owner, "owner", "o", "local", "Owner id of the settlement")
	playCmd.Flags().StringVarP(&name, "name", "n", "", "Settlement name on first start")

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the building table",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			printCatalog(os.Stdout, e.Catalog)
			return nil
		},
	}

	archiveCmd := &cobra.Command{
		Use:   "archive <file.jsonl.zst>...",
		Short: "Print events from compressed archive files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				events, err := eventlog.ReadFile(path)
				if err != nil {
					return err
				}
				color.New(color.FgCyan, color.Bold).Printf("%s (%d events)\n", filepath.Base(path), len(events))
				printEvents(os.Stdout, events)
			}
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, playCmd, catalogCmd, archiveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEngine builds the engine from the balance file and the entropy source.
func loadEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, fmt.Errorf("load balance: %w", err)
		}
		slog.Debug("balance loaded", "path", configFile)
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}

	e, err := cfg.Engine()
	if err != nil {
		return nil, err
	}

	if rng := entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY")); rng != nil {
		e.Sources = engine.SharedSource(rng)
		slog.Info("entropy: random.org enabled")
	} else {
		slog.Debug("entropy: seeded per-settlement streams", "seed", cfg.Seed)
	}
	return e, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := loadEngine(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ──────────────────────────────────────────────────────
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	dbPath := filepath.Join(dataDir, "citysim.db")
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)
	if err := db.SaveMeta(ctx, "last_start", time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("save meta failed", "error", err)
	}

	hub := api.NewHub()
	defer hub.Close()

	journal := engine.MultiJournal{db, hub}
	if !noArchive {
		archive := eventlog.NewWriter(filepath.Join(dataDir, "events"), "events")
		defer archive.Close()
		journal = append(journal, archive)
	}

	svc := engine.NewService(e, engine.NewRegistry(), engine.RealClock{}, journal)

	// ── HTTP API ─────────────────────────────────────────────────────
	adminKey := os.Getenv("CITYSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("CITYSIM_ADMIN_KEY not set, admin endpoints will be disabled")
	}
	apiServer := &api.Server{
		Service:  svc,
		DB:       db,
		Hub:      hub,
		Port:     port,
		AdminKey: adminKey,
	}
	httpServer := apiServer.Start()

	// ── Sweeper ──────────────────────────────────────────────────────
	sched := engine.NewScheduler(svc)
	sched.Interval = sweepEvery
	sched.OnSweep = func(ctx context.Context, stats engine.Stats) {
		if stats.Settlements == 0 {
			return
		}
		if err := db.SaveStats(ctx, stats); err != nil {
			slog.Warn("save stats failed", "error", err)
		}
	}

	fmt.Printf("API: http://localhost:%d/api/v1/status\n", port)
	fmt.Println("Serving settlements... (Ctrl+C to stop)")

	sched.Run(ctx)

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	e, err := loadEngine(cmd)
	if err != nil {
		return err
	}
	svc := engine.NewService(e, nil, nil, &narrator{out: os.Stdout})
	return play(cmd.Context(), svc, os.Stdin, os.Stdout)
}

// play runs the line-oriented client until quit or EOF.
func play(ctx context.Context, svc *engine.Service, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	view, err := svc.GetOrCreate(ctx, owner, name)
	if err != nil {
		return err
	}
	printView(out, view)
	fmt.Fprintln(out, "Type 'help' for commands.")

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "status", "s":
			view, err := svc.Tick(ctx, owner)
			if err != nil {
				return err
			}
			printView(out, view)

		case "collect", "c":
			rep, err := svc.Collect(ctx, owner)
			if err != nil {
				return err
			}
			printCollect(out, rep)

		case "build", "b":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: build <food_farm|lumber_mill|mine|house>")
				continue
			}
			kind, err := economy.ParseBuildingKind(strings.Join(fields[1:], " "))
			if err != nil {
				color.New(color.FgRed).Fprintln(out, err)
				continue
			}
			view, err := svc.Build(ctx, owner, kind)
			var short *economy.InsufficientResourcesError
			switch {
			case errors.As(err, &short):
				printShortfall(out, kind, short)
			case err != nil:
				return err
			default:
				color.New(color.FgGreen).Fprintf(out, "Built a %s.\n", kindLabel(kind))
				printView(out, view)
			}

		case "day", "d":
			rep, view, err := svc.AdvanceDay(ctx, owner)
			if err != nil {
				return err
			}
			printDay(out, rep)
			printView(out, view)

		case "catalog":
			printCatalog(out, svc.Engine().Catalog)

		case "help", "h", "?":
			printHelp(out)

		case "quit", "q", "exit":
			return nil

		default:
			fmt.Fprintf(out, "unknown command %q, try 'help'\n", fields[0])
		}
	}
}
