package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yokan-project/yokan/pkg/log"
	"github.com/yokan-project/yokan/pkg/metrics"
	"github.com/yokan-project/yokan/pkg/provider"
	"github.com/yokan-project/yokan/pkg/rpc"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "yokan-provider",
	Short:   "yokan-provider serves one key-value/document database over the yokan wire protocol",
	Version: Version,
	RunE:    runProvider,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("yokan-provider version %s\nCommit: %s\n", Version, Commit))

	rootCmd.Flags().String("config", "", "path to the provider's JSON configuration file (required)")
	rootCmd.Flags().String("listen", "127.0.0.1:9123", "address to accept yokan connections on")
	rootCmd.Flags().Uint16("provider-id", 1, "16-bit provider id this process serves under")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9191", "address to serve Prometheus metrics on")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "emit logs as JSON")
	rootCmd.MarkFlagRequired("config")
}

func runProvider(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	configPath, _ := cmd.Flags().GetString("config")
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	providerID, _ := cmd.Flags().GetUint16("provider-id")
	p, s := provider.New(providerID, raw, nil)
	if !s.IsOK() {
		return fmt.Errorf("construct provider: %s", s)
	}
	defer p.Close()

	registry := rpc.NewRegistry()
	p.Register(registry)
	registry.Seal()

	listenAddr, _ := cmd.Flags().GetString("listen")
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	defer ln.Close()
	log.Logger.Info().Str("addr", listenAddr).Uint16("provider_id", providerID).Msg("yokan-provider listening")

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Logger.Error().Err(err).Msg("metrics server exited")
		}
	}()
	log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint ready")

	acceptErr := make(chan error, 1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				acceptErr <- err
				return
			}
			rpc.NewConn(conn, registry, nil)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-acceptErr:
		return fmt.Errorf("accept loop: %w", err)
	}
	return nil
}
