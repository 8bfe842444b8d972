package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tornsidekick/sidekick/internal/api"
	"github.com/tornsidekick/sidekick/internal/daemon"
	"github.com/tornsidekick/sidekick/internal/domain"
	"github.com/tornsidekick/sidekick/internal/infra/enrich"
	"github.com/tornsidekick/sidekick/internal/infra/kvstore"
	"github.com/tornsidekick/sidekick/internal/infra/ledger"
	"github.com/tornsidekick/sidekick/internal/infra/matcher"
	"github.com/tornsidekick/sidekick/internal/infra/reconcile"
	"github.com/tornsidekick/sidekick/internal/infra/tornapi"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("config", "", "Path to config file (default ~/.sidekick/config.toml)")
	serveCmd.Flags().String("api-key", "", "Torn API key (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sidekick daemon",
	Long: `Start the ledger daemon: loads the obligation ledger from disk,
begins the reconciliation and interest timers, and serves the local
HTTP API for the overlay.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	home, err := daemon.Home()
	if err != nil {
		return err
	}
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = daemon.ConfigPath(home)
	}
	cfg, err := daemon.Load(cfgPath)
	if err != nil {
		return err
	}
	if key, _ := cmd.Flags().GetString("api-key"); key != "" {
		cfg.Torn.APIKey = key
	}

	// ─── Wiring ─────────────────────────────────────────────────────────

	store, err := kvstore.Open(cfg.DBPath(home))
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer store.Close()

	tornCfg := tornapi.DefaultConfig()
	tornCfg.BaseURL = cfg.Torn.BaseURL
	tornCfg.MinCallInterval = daemon.Duration(cfg.Torn.MinCallInterval, tornCfg.MinCallInterval)
	tornCfg.RequestTimeout = daemon.Duration(cfg.Torn.RequestTimeout, tornCfg.RequestTimeout)
	source := tornapi.New(tornCfg, func() string { return cfg.Torn.APIKey })

	svc := ledger.New(store)
	svc.Load(cmd.Context())

	notifier := domain.LogNotifier{Logf: log.Printf}

	matchCfg := matcher.DefaultConfig()
	matchCfg.Window = daemon.Duration(cfg.Reconcile.MatchWindow, matchCfg.Window)
	if cfg.Reconcile.Keyword != "" {
		matchCfg.Keyword = cfg.Reconcile.Keyword
	}
	match := matcher.New(matchCfg, svc, notifier)

	recCfg := reconcile.DefaultConfig()
	recCfg.ReconcileInterval = daemon.Duration(cfg.Reconcile.Interval, recCfg.ReconcileInterval)
	recCfg.InterestInterval = daemon.Duration(cfg.Reconcile.InterestInterval, recCfg.InterestInterval)
	recCfg.StartupDelay = daemon.Duration(cfg.Reconcile.StartupDelay, recCfg.StartupDelay)
	scheduler := reconcile.New(recCfg, svc, source, match, notifier)

	enrichCfg := enrich.DefaultConfig()
	enrichCfg.Interval = daemon.Duration(cfg.Enrich.Interval, enrichCfg.Interval)
	enrichCfg.CallSpacing = daemon.Duration(cfg.Enrich.CallSpacing, enrichCfg.CallSpacing)
	resolver := enrich.New(enrichCfg, svc, source)

	server := api.NewServer(svc)
	server.SetResolver(resolver)
	if cfg.Metrics.Enabled {
		server.EnableMetrics()
	}

	// ─── Run ────────────────────────────────────────────────────────────

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		resolver.Run(ctx)
	}()

	httpSrv := &http.Server{
		Addr:    cfg.API.Addr(),
		Handler: server.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("sidekick %s listening on %s (ledger: %s)", version, cfg.API.Addr(), cfg.DBPath(home))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	wg.Wait()
	log.Printf("sidekick stopped")
	return nil
}
