// Package main provides the entry point for the governance influence monitor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"influence-monitoring/internal/api"
	"influence-monitoring/internal/chain"
	"influence-monitoring/internal/collector"
	"influence-monitoring/internal/config"
	dbpkg "influence-monitoring/internal/db"
	"influence-monitoring/internal/detector"
	"influence-monitoring/internal/labels"
	"influence-monitoring/internal/logger"
	"influence-monitoring/internal/metrics"
	"influence-monitoring/internal/sink"
	"influence-monitoring/internal/store/gormdb"
	"influence-monitoring/internal/store/localdb"
	"influence-monitoring/internal/tui"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const recentCapacity = 200

type options struct {
	EnvFile    string `long:"env-file" default:".env" description:"Environment file loaded before reading the configuration"`
	Debug      bool   `short:"d" long:"debug" description:"Enable debug logging and disable the TUI"`
	NoTUI      bool   `long:"no-tui" description:"Log to stderr instead of showing the TUI"`
	StartBlock uint64 `long:"start-block" description:"First block to process (default: current head)"`
	LogFile    string `long:"log-file" default:"monitor.log" description:"Log file used while the TUI is shown"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Try to load the env file if present; otherwise use environment as-is
	if _, statErr := os.Stat(opts.EnvFile); statErr == nil {
		_ = godotenv.Load(opts.EnvFile)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || opts.Debug
	cfg.NoTUI = cfg.NoTUI || opts.NoTUI || cfg.Debug
	if opts.StartBlock != 0 {
		cfg.StartBlock = opts.StartBlock
	}

	// The TUI owns the terminal; logs go to a rotated file while it runs.
	log := logger.NewWithWriter(cfg.Debug, os.Stderr)
	if !cfg.NoTUI {
		log, err = logger.NewWithRotator(cfg.Debug, opts.LogFile, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Logs written to %s\n", opts.LogFile)
	}
	defer log.Close()
	useLoggers(log)

	log.Printf("Governance monitor starting...")
	log.Printf("Config loaded: %s", cfg.DebugString())

	st, gormDB, err := dbpkg.OpenStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()
	if gormDB != nil {
		log.Printf("DB connected, migrations applied")
	} else {
		log.Printf("DATABASE_URL not provided, using leveldb at %s", cfg.LevelDBPath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eth, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", cfg.EthRPCURL, err)
	}
	defer eth.Close()

	governor := common.HexToAddress(cfg.GovernorAddress)
	token := common.HexToAddress(cfg.TokenAddress)
	fetcher := chain.NewFetcher(eth, chain.NewDecoder(governor, token))
	monitor := detector.New(detector.NewConfig(cfg.Engine, cfg.AlertPrefix), st, chain.NewLedger(eth, token))

	recent := sink.NewRecent(recentCapacity)
	sinks := sink.Multi{sink.NewLogSink(log.Subsystem(logger.SubsystemSink)), recent}
	if gormDB != nil {
		sinks = append(sinks, sink.NewDBSink(gormDB))
	}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		ks, err := sink.NewKafkaSink(brokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatalf("failed to connect kafka: %v", err)
		}
		sinks = append(sinks, ks)
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Printf("close sinks: %v", err)
		}
	}()

	m := metrics.New()

	var updates chan interface{}
	if !cfg.NoTUI {
		updates = make(chan interface{}, collector.TUIChannelBufferSize)
	}
	coll := collector.NewCollector(cfg, fetcher, monitor, st, sinks, collector.Options{
		Labels:  labels.NewResolver(cfg.LabelsURL),
		Metrics: m,
		Recent:  recent,
		Updates: updates,
	})

	if updates != nil {
		go func() {
			if err := tui.Run(cfg.GovernorAddress, updates); err != nil {
				log.Printf("TUI error: %v", err)
			}
			// TUI exited, cancel context to trigger shutdown
			cancel()
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coll.Run(gctx)
	})
	if cfg.APIListen != "" {
		srv := api.New(coll, recent, st, m.Handler())
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.APIListen)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("monitor stopped: %v", err)
	}
	log.Println("shutting down...")

	if updates != nil {
		// Close TUI update channel to stop sending updates
		close(updates)
		// Give TUI a moment to process the close and quit
		time.Sleep(collector.TUICloseDelay)
	}

	// Ensure logs flushed in some environments
	_ = os.Stderr.Sync()
	_ = os.Stdout.Sync()
}

func useLoggers(l *logger.Logger) {
	detector.UseLogger(l.Subsystem(logger.SubsystemDetector))
	localdb.UseLogger(l.Subsystem(logger.SubsystemStore))
	gormdb.UseLogger(l.Subsystem(logger.SubsystemStore))
	chain.UseLogger(l.Subsystem(logger.SubsystemChain))
	collector.UseLogger(l.Subsystem(logger.SubsystemCollector))
	labels.UseLogger(l.Subsystem(logger.SubsystemCollector))
	sink.UseLogger(l.Subsystem(logger.SubsystemSink))
	api.UseLogger(l.Subsystem(logger.SubsystemAPI))
}
