package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/api"
	"github.com/ZentaChain/zentalk-collab/pkg/config"
	"github.com/ZentaChain/zentalk-collab/pkg/credentials"
	"github.com/ZentaChain/zentalk-collab/pkg/crypto"
	"github.com/ZentaChain/zentalk-collab/pkg/logging"
	"github.com/ZentaChain/zentalk-collab/pkg/metrics"
	"github.com/ZentaChain/zentalk-collab/pkg/server"
	"github.com/ZentaChain/zentalk-collab/pkg/storage"
)

type serveFlags struct {
	config   string
	addr     string
	logLevel string
	auditDB  string
}

func serveCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = f.addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = f.logLevel
			}
			if cmd.Flags().Changed("audit-db") {
				cfg.AuditDBPath = f.auditDB
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (overrides config)")
	cmd.Flags().StringVar(&f.auditDB, "audit-db", "", "SQLite audit log path, empty disables (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	printBanner()

	key, err := signingKey(cfg.SigningKeyPath, log)
	if err != nil {
		return err
	}
	signer := credentials.NewSigner(key, cfg.ClaimTTL)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	opts := server.Options{
		Signer:         signer,
		Encodings:      cfg.Encodings,
		RequestTimeout: cfg.RequestTimeout,
		RelayTimeout:   cfg.RelayTimeout,
		JoinTimeout:    cfg.JoinTimeout,
		ReconnectGrace: cfg.ReconnectGrace,
		Metrics:        m,
		Logger:         log,
	}

	var events api.EventSource
	if cfg.AuditDBPath != "" {
		var audit *storage.EventLog
		audit, err = storage.OpenEventLog(cfg.AuditDBPath, cfg.AuditRetention, log)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, audit.Close()) }()
		opts.Audit = audit
		events = audit
		log.Info("audit log enabled", zap.String("path", cfg.AuditDBPath), zap.Duration("retention", cfg.AuditRetention))
	}

	relay := server.New(opts)
	creds := credentials.NewManager(signer, relay, credentials.Options{
		Expiry:   cfg.AuthExpiry,
		PollWait: cfg.PollWait,
		Logger:   log,
	})
	defer creds.Close()

	front := api.NewServer(&api.Config{
		Addr:        cfg.Addr,
		EnableCORS:  cfg.EnableCORS,
		RateLimit:   cfg.RateLimit,
		ReadTimeout: 30 * time.Second,
		Encodings:   cfg.Encodings,
		Compression: cfg.Compression,
	}, creds, relay, events, m, log)

	printStatus(cfg)

	err = front.Start(ctx)

	log.Info("shutting down")
	err = multierr.Combine(err, relay.Close(), front.Stop())
	if err == nil {
		log.Info("relay stopped")
	}
	return err
}

// signingKey loads the claim signing key, or makes an ephemeral one when no
// path is configured.
func signingKey(path string, log *zap.Logger) (ed25519.PrivateKey, error) {
	if path == "" {
		log.Warn("no signing key path; claims will not survive a restart")
		return crypto.GenerateSigningKey()
	}
	key, err := crypto.LoadOrCreateSigningKey(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	log.Info("signing key loaded", zap.String("path", path))
	return key, nil
}

func printStatus(cfg *config.Config) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("🚀 Relay Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("   Listening: %s\n", cfg.Addr)
	fmt.Printf("   WebSocket: %s/ws\n", cfg.Addr)
	fmt.Printf("   Encodings: %v\n", cfg.Encodings)
	fmt.Printf("   Compression: %v\n", cfg.Compression)
	if cfg.AuditDBPath != "" {
		fmt.Printf("   Audit log: %s\n", cfg.AuditDBPath)
	} else {
		fmt.Printf("   Audit log: ⚠️  DISABLED\n")
	}
	if cfg.MetricsEnabled {
		fmt.Printf("   Metrics: %s/metrics\n", cfg.Addr)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()
}
