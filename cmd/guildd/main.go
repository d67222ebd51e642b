// Command guildd runs the guild engine's HTTP operation surface: it opens
// the bbolt-backed storage kernel, wires the four native engines together,
// and serves the dispatch router until it receives an interrupt.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guildcore/internal/config"
	"guildcore/internal/dispatch"
	"guildcore/internal/events"
	"guildcore/internal/hostauth"
	"guildcore/internal/logging"
	"guildcore/internal/storage"
	"guildcore/internal/tokenhost"
	"guildcore/native/governance"
	"guildcore/native/guild"
	"guildcore/native/multisig"
	"guildcore/native/treasury"
)

func main() {
	configFile := flag.String("config", "./guildd.yaml", "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	baseLogger := logging.Setup("guildd", cfg.Env)
	baseLogger.Info("starting guildd", slog.String("storage_path", cfg.StoragePath), slog.String("listen", cfg.ListenAddress))

	store, err := storage.Open(cfg.StoragePath)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	emitter := events.NoopEmitter{}
	guildEngine := guild.New(store, emitter)
	multisigEngine := multisig.New(store, emitter)
	host := tokenhost.NewMemory()
	treasuryEngine := treasury.New(store, emitter, guildEngine, host)
	governanceEngine := governance.New(store, emitter, guildEngine, multisigEngine)

	auth := hostauth.NewJWTAuthenticator(cfg.Auth.JWTSigningSecret)

	srv := &dispatch.Server{
		Guild:      guildEngine,
		Governance: governanceEngine,
		Multisig:   multisigEngine,
		Treasury:   treasuryEngine,
		Auth:       auth,
	}

	runServer(cfg.ListenAddress, srv.Router(), baseLogger)
}

func runServer(addr string, handler http.Handler, logger *slog.Logger) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server exited", slog.String("error", err.Error()))
		}
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		}
	}
}
