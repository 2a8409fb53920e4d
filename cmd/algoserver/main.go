// algoserver runs the Sensex EMA crossover bot behind an HTTP control
// surface: POST /start and /stop drive the strategy loop, GET /status
// and /logs expose the run state, /ws/logs streams the run log. The
// Kite session is established headlessly at startup and refreshed
// every morning before the market opens.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bmittal0901/SensexAlgo/config"
	"github.com/Bmittal0901/SensexAlgo/internal/broker"
	"github.com/Bmittal0901/SensexAlgo/internal/engine"
	"github.com/Bmittal0901/SensexAlgo/internal/journal"
	"github.com/Bmittal0901/SensexAlgo/internal/logger"
	"github.com/Bmittal0901/SensexAlgo/internal/logring"
	"github.com/Bmittal0901/SensexAlgo/internal/markethours"
	"github.com/Bmittal0901/SensexAlgo/internal/metrics"
	"github.com/Bmittal0901/SensexAlgo/internal/notification"
	redisstore "github.com/Bmittal0901/SensexAlgo/internal/store/redis"
	"github.com/Bmittal0901/SensexAlgo/internal/web"
	"github.com/Bmittal0901/SensexAlgo/pkg/kiteconnect"
)

// reloginHour is the IST wall time of the daily session refresh, ahead
// of the 09:15 open.
const (
	reloginHour   = 8
	reloginMinute = 30
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	applog := logger.Init("algoserver", slog.LevelInfo)
	applog.Info("starting")

	cfg := config.Load()

	// ---- Broker session ----
	kc := kiteconnect.New(kiteconnect.Config{APIKey: cfg.KiteAPIKey})
	creds := kiteconnect.Credentials{
		UserID:     cfg.KiteUserID,
		Password:   cfg.KitePassword,
		TOTPSecret: cfg.KiteTOTPSecret,
		APISecret:  cfg.KiteAPISecret,
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	kc.SessionExpiryHook = func() { health.SetBrokerSessionOK(false) }
	establishSession(ctx, kc, creds, health)

	// ---- Redis (optional) ----
	var store *redisstore.Store
	store, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[algoserver] WARNING: redis init failed: %v (continuing without redis)", err)
		store = nil
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
		defer store.Close()
	}

	// ---- Trade journal ----
	os.MkdirAll("data", 0o755)
	jrnl, err := journal.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[algoserver] journal init failed: %v", err)
	}
	defer jrnl.Close()
	health.SetSQLiteOK(true)

	if store != nil {
		health.StartLivenessChecker(ctx, store.Client(), jrnl.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, jrnl.DB(), 10*time.Second)
	}

	// ---- Alerting ----
	var notifiers notification.Multi
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	var notifier notification.Notifier
	if len(notifiers) > 0 {
		notifier = notifiers
	} else {
		notifier = notification.NewLogNotifier()
	}

	// ---- Engine ----
	var cache broker.InstrumentCache
	if store != nil {
		cache = store
	}
	kite := broker.NewKite(kc, cache)

	ring := logring.New(1000)
	deps := engine.Deps{
		Candles:  kite,
		Quotes:   kite,
		Orders:   kite,
		Resolver: kite,
		Log:      ring,
		Journal:  jrnl,
		Notifier: notifier,
		Metrics:  prom,
	}
	if store != nil {
		deps.Status = store
	}
	runner := engine.New(deps)

	// ---- Daily session refresh ----
	go reloginScheduler(ctx, kc, creds, health)

	// ---- Control surface ----
	srv := web.NewServer(cfg.HTTPAddr, runner, ring, jrnl)
	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("[algoserver] http server error: %v", err)
			cancel()
		}
	}()

	select {
	case sig := <-sigCh:
		log.Printf("[algoserver] received %v, shutting down...", sig)
	case <-ctx.Done():
	}

	runner.Stop()
	if done := runner.Done(); done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			log.Println("[algoserver] WARNING: loop did not stop in time")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	applog.Info("shutdown complete")
}

func login(ctx context.Context, kc *kiteconnect.Client, creds kiteconnect.Credentials) error {
	loginCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if _, err := kc.AutoLogin(loginCtx, creds); err != nil {
		return err
	}
	name, err := kc.Profile(loginCtx)
	if err != nil {
		return fmt.Errorf("session probe: %w", err)
	}
	log.Printf("[algoserver] logged in as %s", name)
	return nil
}

// establishSession attempts a broker login and records the result in the
// health status. A failure is not fatal: the control surface still comes
// up so the session can be retried by the daily scheduler or diagnosed
// over /healthz.
func establishSession(ctx context.Context, kc *kiteconnect.Client, creds kiteconnect.Credentials, health *metrics.HealthStatus) bool {
	if err := login(ctx, kc, creds); err != nil {
		log.Printf("[algoserver] WARNING: login failed, continuing without a broker session: %v", err)
		health.SetBrokerSessionOK(false)
		return false
	}
	health.SetBrokerSessionOK(true)
	return true
}

// reloginScheduler refreshes the broker session at 08:30 IST on every
// trading day. Kite access tokens expire daily, so a bot left running
// overnight needs a fresh session before the open.
func reloginScheduler(ctx context.Context, kc *kiteconnect.Client, creds kiteconnect.Credentials, health *metrics.HealthStatus) {
	for {
		next := markethours.NextDailyAt(time.Now(), reloginHour, reloginMinute)
		log.Printf("[algoserver] next session refresh at %s", next.Format("2006-01-02 15:04 MST"))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !markethours.IsTradingDay(time.Now()) {
			log.Println("[algoserver] holiday/weekend, skipping session refresh")
			continue
		}
		establishSession(ctx, kc, creds, health)
	}
}
