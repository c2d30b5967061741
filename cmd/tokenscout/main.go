package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tokenscout/tokenscout/internal/app"
	"github.com/tokenscout/tokenscout/internal/config"
)

const (
	appName = "tokenscout"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Solana token scanner and strategy-config publisher",
		Version: version,
		Long: `tokenscout ingests newly-migrated Solana tokens, scores them with the
hybrid-momentum model, and publishes the top performers as a strategy
configuration artifact.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	bindConfigFlags(rootCmd.PersistentFlags())

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: feed, scheduler, publisher, HTTP server",
		RunE:  runPipeline,
	}

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Print one publication artifact and exit",
		RunE:  runPublish,
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check store and market-data provider connectivity",
		RunE:  runHealth,
	}

	rootCmd.AddCommand(runCmd, publishCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// bindConfigFlags exposes the startup settings that are most commonly
// overridden on the command line. Everything else comes from the config file
// or TOKENSCOUT_* environment variables.
func bindConfigFlags(fs *pflag.FlagSet) {
	fs.String("listen", "", "HTTP listen address (overrides config)")
	fs.String("log-level", "", "Log level: trace|debug|info|warn|error")
	fs.String("db", "", "Postgres DSN (overrides config)")
}

// buildConfig merges file, environment, and flag overrides into a validated
// store.
func buildConfig(cmd *cobra.Command) (*config.Store, error) {
	path, _ := cmd.Flags().GetString("config")
	snap, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		snap.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		snap.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		snap.DatabaseDSN = v
	}

	applyLogLevel(snap.LogLevel)
	return config.NewStore(snap)
}

func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfgStore, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfgStore)
	if err != nil {
		return err
	}

	log.Info().Str("version", version).Msg("tokenscout starting")
	return a.Run(ctx)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	cfgStore, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfgStore)
	if err != nil {
		return err
	}
	defer func() { _ = a.Repo.Close() }()

	doc, err := a.Generator.Generate(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(doc)
	return nil
}

// wrappedSOL always exists on the provider, which makes it a cheap liveness
// probe.
const wrappedSOL = "So11111111111111111111111111111111111111112"

func runHealth(cmd *cobra.Command, _ []string) error {
	cfgStore, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfgStore)
	if err != nil {
		return err
	}
	defer func() { _ = a.Repo.Close() }()

	healthy := true
	if err := a.Repo.Ping(cmd.Context()); err != nil {
		healthy = false
		fmt.Printf("store:    FAIL (%v)\n", err)
	} else {
		fmt.Println("store:    ok")
	}

	if _, err := a.Gateway.Overview(cmd.Context(), wrappedSOL); err != nil {
		healthy = false
		fmt.Printf("provider: FAIL (%v)\n", err)
	} else {
		fmt.Println("provider: ok")
	}

	if !healthy {
		return fmt.Errorf("health check failed")
	}
	return nil
}
