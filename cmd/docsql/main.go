package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/guileen/docsql/client"
	"github.com/guileen/docsql/config"
	"github.com/guileen/docsql/engine"
	"github.com/guileen/docsql/logger"
	"github.com/guileen/docsql/protocol/api"
)

var (
	configPath string
	dataDir    string
	inMemory   bool
)

var rootCmd = &cobra.Command{
	Use:           "docsql",
	Short:         "Embedded document store with a SQL front end",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var (
	execDatabase string
	execURL      string
	execUser     string
	execPassword string
)

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Run statements and print the response envelope",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override data_dir")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "in-memory", false, "keep all data in memory")

	execCmd.Flags().StringVarP(&execDatabase, "database", "d", "", "database to run in")
	execCmd.Flags().StringVar(&execURL, "url", "", "run against a server instead of the local data directory")
	execCmd.Flags().StringVarP(&execUser, "user", "u", "", "basic auth user for --url")
	execCmd.Flags().StringVarP(&execPassword, "password", "p", "", "basic auth password for --url")

	rootCmd.AddCommand(serveCmd, execCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("in-memory") {
		cfg.InMemory = inMemory
	}

	logCfg := logger.LoadConfig()
	if level, ok := logger.ParseLevel(cfg.Log.Level); ok && os.Getenv("LOG_LEVEL") == "" {
		logCfg.Level = level
	}
	if os.Getenv("LOG_FORMAT") == "" && cfg.Log.Format != "" {
		logCfg.Format = cfg.Log.Format
	}
	logger.Configure(logCfg)
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer e.Close()

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(e),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logger.Component("server"), logger.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", logger.Component("server"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var c *client.Client
	if execURL != "" {
		var opts []client.Option
		if execUser != "" {
			opts = append(opts, client.WithBasicAuth(execUser, execPassword))
		}
		c = client.NewRemote(execURL, opts...)
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		e, err := engine.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
		defer e.Close()
		c = client.NewEmbedded(e)
	}
	c.Use(execDatabase)

	resp, err := c.Query(ctx, args[0])
	if resp != nil {
		out, merr := json.MarshalIndent(resp, "", "  ")
		if merr != nil {
			return merr
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
