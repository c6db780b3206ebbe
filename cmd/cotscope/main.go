// cotscope - Commitment of Traders dashboard
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/cotscope/api"
	"github.com/seenimoa/cotscope/internal/config"
	"github.com/seenimoa/cotscope/internal/provider"
	"github.com/seenimoa/cotscope/internal/providers"
	"github.com/seenimoa/cotscope/internal/scheduler"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cotscope",
	Short: "cotscope - Commitment of Traders dashboard",
	Long: `cotscope reads the CFTC Commitment of Traders reports, curates and groups
the contracts, flags commercial positioning near historical extremes, and
computes calendar seasonality for the underlying markets.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "print JSON instead of tables")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

// openApp wires the components for a command. Callers must Close it.
func openApp(cmd *cobra.Command) (*app, error) {
	level, _ := cmd.Flags().GetString("log-level")
	return newApp(cfg, level)
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cotscope %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the extremes refresh job",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.API.Port = port
		}

		var srv *api.Server
		sched := scheduler.New(a.dash, func(ev scheduler.Event) {
			if srv != nil {
				srv.Hub().Notify(ev)
			}
		}, a.logger)

		srv, err = api.NewServer(api.Options{
			Config:    cfg,
			Dashboard: a.dash,
			Account:   a.providers.Backend,
			Gate:      a.gate(),
			Scheduler: sched,
			Metrics:   a.metrics,
			Logger:    a.logger,
			Version:   version,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		if _, err := a.dash.LoadLatest(ctx); err != nil {
			a.logger.Warn("initial report load failed, serving empty state", "error", err)
		}
		cancel()

		if err := sched.Start(cfg.Extremes.RefreshCron); err != nil {
			return err
		}
		defer func() { <-sched.Stop().Done() }()

		return srv.ListenAndServe(cfg.API.Addr())
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "override api.port")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		source := cfg.Source
		if source == "" {
			source = "(defaults)"
		}
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  cotscope - System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Time (UTC):    %s\n", time.Now().UTC().Format(time.RFC1123))
		fmt.Printf("  Config file:   %s\n", source)
		fmt.Println()

		// Config summary
		fmt.Println("  Configuration:")
		fmt.Printf("    Backend:       %s\n", cfg.Backend.BaseURL)
		fmt.Printf("    CFTC API:      %s\n", cfg.CFTC.BaseURL)
		fmt.Printf("    Storage:       %s (%s)\n", cfg.Storage.Driver, cfg.Storage.Path)
		fmt.Printf("    Extremes:      threshold %.0f%%, cache %s, refresh %q\n",
			cfg.Extremes.Threshold*100, cfg.Extremes.CacheTTL, cfg.Extremes.RefreshCron)
		fmt.Printf("    Access gate:   %t\n", cfg.Access.Enabled)
		fmt.Printf("    API Server:    %s\n", cfg.API.Addr())
		fmt.Println()

		// Provider routing, first entry is the default
		reg := provider.NewRegistry()
		if _, err := providers.RegisterAllTo(reg, cfg); err != nil {
			return err
		}
		coverage := reg.ModelCoverage()
		fmt.Println("  Data sources:")
		for _, m := range provider.AllModels() {
			fmt.Printf("    %-22s %s\n", string(m)+":", strings.Join(coverage[m], ", then "))
		}
		fmt.Println()

		// API keys status
		fmt.Println("  Credentials:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
