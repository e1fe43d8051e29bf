package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/schedcore/pkg/config"
	"github.com/cuemby/schedcore/pkg/dbsync"
	"github.com/cuemby/schedcore/pkg/dispatch"
	"github.com/cuemby/schedcore/pkg/driver"
	"github.com/cuemby/schedcore/pkg/driver/fake"
	"github.com/cuemby/schedcore/pkg/execution"
	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/metrics"
	"github.com/cuemby/schedcore/pkg/nodes"
	"github.com/cuemby/schedcore/pkg/offers"
	"github.com/cuemby/schedcore/pkg/reconcile"
	"github.com/cuemby/schedcore/pkg/scheduling"
	"github.com/cuemby/schedcore/pkg/store/boltstore"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler core (dispatcher, offer/node/execution managers and the three loops)",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return runServe(configPath)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (overrides the persistent --config flag)")
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("serve: create data dir: %w", err)
	}
	db, err := boltstore.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("serve: open store: %w", err)
	}
	defer db.Close()

	offerMgr := offers.New()
	nodeMgr := nodes.New()
	execMgr := execution.NewManager()
	reconSet := reconcile.NewSet()

	d := dispatch.New(offerMgr, nodeMgr, execMgr, reconSet, db, db, db, nil)

	reconLoop := reconcile.NewLoop(reconSet, d, cfg.Reconcile.Interval)
	dbsyncLoop := dbsync.NewLoop(db, db, db, nodeMgr, offerMgr, cfg.DBSync.Interval)
	schedLoop := scheduling.NewLoop(db, offerMgr, nodeMgr, execMgr, reconSet, d, dbsyncLoop.Scheduler(), scheduling.Config{
		Interval:     cfg.Scheduling.Interval,
		BatchSize:    cfg.Scheduling.BatchSize,
		OfferMaxHold: cfg.Scheduling.OfferMaxHold,
	})
	d.SetLoops(reconLoop, dbsyncLoop, schedLoop)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Logger.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics endpoint listening")
		if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
			log.Logger.Error().Err(err).Msg("metrics server exited")
		}
	}()

	fakeDriver := fake.New()
	d.Registered(fakeDriver, types.FrameworkID(uuid.NewString()), driver.MasterInfo{Hostname: "localhost", Port: 5050})

	log.Logger.Info().Msg("schedcore serving; press Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down")
	return nil
}
