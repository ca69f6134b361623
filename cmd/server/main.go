package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"hivesim.ai/internal/persistence/journal"
	persistlog "hivesim.ai/internal/persistence/log"
	"hivesim.ai/internal/protocol"
	"hivesim.ai/internal/sim/hive"
	"hivesim.ai/internal/sim/swarm"
	"hivesim.ai/internal/sim/tuning"
	"hivesim.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite journal")
		disableLog = flag.Bool("disable_log", false, "disable the jsonl transition log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	proxCfg, err := tune.ProximityConfig()
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}
	contCfg, err := tune.ContagionConfig()
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	index := swarm.NewProximityIndex(proxCfg)
	engine := swarm.NewContagionEngine(index, contCfg, log.New(os.Stdout, "[contagion] ", log.LstdFlags|log.Lmicroseconds))

	h := hive.New(hive.Config{
		TickRateHz:        tune.TickRateHz,
		MetricsEveryTicks: tune.MetricsEveryTicks,
	}, index, engine, log.New(os.Stdout, "[hive] ", log.LstdFlags|log.Lmicroseconds))

	hiveDir := filepath.Join(*dataDir, "hive")
	_ = os.MkdirAll(hiveDir, 0o755)

	if !*disableLog {
		tl := persistlog.NewTransitionLogger(hiveDir)
		defer tl.Close()
		h.SetTickLogger(tl)
	}
	if !*disableDB {
		jnl, err := journal.Open(filepath.Join(hiveDir, "journal.db"))
		if err != nil {
			logger.Fatalf("open journal: %v", err)
		}
		defer jnl.Close()
		h.SetJournal(jnl)
	}

	wsSrv := ws.NewServer(h, protocol.HiveParams{
		TickRateHz:           tune.TickRateHz,
		MaxInfluenceDistance: tune.Proximity.MaxInfluenceDistance,
		UpdateIntervalMs:     tune.Proximity.UpdateIntervalMs,
		ProcessIntervalMs:    tune.Contagion.ProcessIntervalMs,
	}, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	httpSrv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("hive loop running (tick_rate=%dhz agents_range=%.0f)", tune.TickRateHz, tune.Proximity.MaxInfluenceDistance)
		err := h.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server: %v", err)
	}
	logger.Printf("bye")
}
