// algobot is the standalone runner: one strategy configuration from
// flags, one session, logs on stdout. Ctrl-C squares nothing off; it
// simply stops the loop, mirroring a manual kill of the scripted bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bmittal0901/SensexAlgo/config"
	"github.com/Bmittal0901/SensexAlgo/internal/broker"
	"github.com/Bmittal0901/SensexAlgo/internal/engine"
	"github.com/Bmittal0901/SensexAlgo/internal/journal"
	"github.com/Bmittal0901/SensexAlgo/internal/logring"
	"github.com/Bmittal0901/SensexAlgo/internal/metrics"
	"github.com/Bmittal0901/SensexAlgo/internal/model"
	"github.com/Bmittal0901/SensexAlgo/internal/notification"
	redisstore "github.com/Bmittal0901/SensexAlgo/internal/store/redis"
	"github.com/Bmittal0901/SensexAlgo/pkg/kiteconnect"
)

func main() {
	var (
		callStrike = flag.Float64("ce-strike", 0, "call leg strike (required)")
		putStrike  = flag.Float64("pe-strike", 0, "put leg strike (required)")
		lots       = flag.Int("lots", 1, "number of lots")
		profit     = flag.Float64("profit", 50, "target in points above entry")
		stoploss   = flag.Float64("stoploss", 20, "stoploss in points below entry")
		timeframe  = flag.String("tf", "5m", "candle timeframe: 3m, 5m or 15m")
		dryRun     = flag.Bool("dry-run", false, "log orders instead of placing them")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[algobot] starting...")

	if *callStrike <= 0 || *putStrike <= 0 {
		fmt.Fprintln(os.Stderr, "both -ce-strike and -pe-strike are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	// ---- Broker session ----
	kc := kiteconnect.New(kiteconnect.Config{APIKey: cfg.KiteAPIKey})
	loginCtx, loginCancel := context.WithTimeout(context.Background(), 60*time.Second)
	_, err := kc.AutoLogin(loginCtx, kiteconnect.Credentials{
		UserID:     cfg.KiteUserID,
		Password:   cfg.KitePassword,
		TOTPSecret: cfg.KiteTOTPSecret,
		APISecret:  cfg.KiteAPISecret,
	})
	if err != nil {
		loginCancel()
		log.Fatalf("[algobot] login failed: %v", err)
	}
	name, err := kc.Profile(loginCtx)
	loginCancel()
	if err != nil {
		log.Fatalf("[algobot] session probe failed: %v", err)
	}
	log.Printf("[algobot] logged in as %s", name)

	// ---- Redis cache (optional) ----
	var cache broker.InstrumentCache
	store, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[algobot] WARNING: redis unavailable: %v (contract master will be fetched directly)", err)
	} else {
		cache = store
		defer store.Close()
	}

	// ---- Trade journal ----
	os.MkdirAll("data", 0o755)
	jrnl, err := journal.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[algobot] journal init failed: %v", err)
	}
	defer jrnl.Close()

	// ---- Engine ----
	kite := broker.NewKite(kc, cache)
	ring := logring.New(1000)

	runner := engine.New(engine.Deps{
		Candles:  kite,
		Quotes:   kite,
		Orders:   kite,
		Resolver: kite,
		Log:      ring,
		Journal:  jrnl,
		Notifier: notification.NewLogNotifier(),
		Metrics:  metrics.NewMetrics(),
	})

	// Mirror the run log to stdout.
	lines, unsubscribe := ring.Subscribe(256)
	defer unsubscribe()
	go func() {
		for line := range lines {
			fmt.Println(line)
		}
	}()

	err = runner.Start(engine.Config{
		CallStrike:     *callStrike,
		PutStrike:      *putStrike,
		Lots:           *lots,
		ProfitPoints:   *profit,
		StoplossPoints: *stoploss,
		Timeframe:      model.Timeframe(*timeframe),
		DryRun:         *dryRun || cfg.DryRun,
	})
	if err != nil {
		log.Fatalf("[algobot] start failed: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[algobot] received %v, stopping...", sig)
		runner.Stop()
		select {
		case <-runner.Done():
		case <-time.After(10 * time.Second):
			log.Println("[algobot] WARNING: loop did not stop in time")
		}
	case <-runner.Done():
	}

	st := runner.Status()
	log.Printf("[algobot] session over. realized pnl: Rs.%.2f", st.PnL)
}
