package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/pkg/sys"

	"main/internal/broker"
	"main/internal/codec"
	"main/internal/core"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/store"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	walDir := flag.String("wal-dir", "testdata/wal", "Journal output directory")
	ticksDir := flag.String("ticks-dir", "", "Tick WAL to feed through the engine (paper mode)")
	ticksPrefix := flag.String("ticks-prefix", "", "Tick WAL file prefix (default: wal)")
	speed := flag.Float64("speed", 0, "Tick playback speed (1=real-time, 0=no pacing)")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation on tick playback")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes for tick playback (0=unlimited)")
	drain := flag.Duration("drain", 2*time.Second, "Grace period after the feed ends")
	riskSnapshotPath := flag.String("risk-snapshot", "", "Risk state JSON, restored on start and saved on exit")
	recoverEnabled := flag.Bool("recover", false, "Rebuild realized positions from snapshot + journal on start")
	recoverSnapshot := flag.String("recover-snapshot", "", "Position snapshot path for recovery (default: <wal-dir>/positions.json)")
	flag.Parse()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	stopProfiler := startProfiler()
	defer stopProfiler()

	quotes := broker.NewQuoteBook()
	delegator, err := buildDelegator(loaded, quotes)
	if err != nil {
		log.Fatalf("broker init failed: %v", err)
	}

	var journal *recorder.Writer
	if loaded.Features.EnableRecorder {
		journal, err = recorder.NewWriter(recorder.DefaultConfig(*walDir))
		if err != nil {
			log.Fatalf("journal init failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		cancel()
	}()

	var audit *store.Audit
	if loaded.Features.EnableAuditStore {
		audit, err = openAudit(loaded.Database)
		if err != nil {
			log.Fatalf("audit store init failed: %v", err)
		}
		go audit.Run(ctx)
	}

	opts := core.Options{
		Delegator: delegator,
		Quotes:    quotes,
		Journal:   journal,
	}
	if audit != nil {
		opts.PersistSignal = audit.SaveSignal
		opts.PersistEvent = audit.SavePositionEvent
	}
	engine := core.New(loaded, opts)

	if *riskSnapshotPath != "" {
		if err := restoreRiskState(*riskSnapshotPath, engine.Governor()); err != nil {
			log.Fatalf("risk snapshot restore failed: %v", err)
		}
	}
	if *recoverEnabled {
		recoverPath := *recoverSnapshot
		if recoverPath == "" {
			recoverPath = *walDir + "/positions.json"
		}
		recovered, err := state.RecoverPositions(ctx, state.RecoverConfig{
			WALDir:          *walDir,
			SnapshotPath:    recoverPath,
			DisableChecksum: *noChecksum,
			MaxPayloadSize:  *maxPayload,
		})
		if err != nil {
			log.Fatalf("position recovery failed: %v", err)
		}
		log.Printf("recovered positions=%d last_seq=%d", recovered.Positions.Count(), recovered.LastSeq)
	}

	go engine.Run(ctx)

	if *ticksDir != "" {
		if err := feedFromJournal(ctx, *ticksDir, *ticksPrefix, *speed, *noChecksum, *maxPayload, engine); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("tick feed failed: %v", err)
		}
		time.Sleep(*drain)
		cancel()
	} else {
		<-ctx.Done()
	}

	if *riskSnapshotPath != "" {
		if err := saveRiskState(*riskSnapshotPath, engine.Governor()); err != nil {
			log.Printf("risk snapshot save failed: %v", err)
		}
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			log.Printf("journal close failed: %v", err)
		}
	}

	snapshot := engine.Metrics().Snapshot()
	log.Printf("metrics: events=%v pairings=%d confirmed=%d expired=%d dropped=%d risk_reasons=%v queue_drops=%d detection=%+v",
		snapshot.EventCounts, snapshot.PairingsOpened, snapshot.SignalsConfirmed, snapshot.PairingsExpired,
		snapshot.TicksDropped, snapshot.RiskReasonCounts, snapshot.QueueDrops, snapshot.DetectionLatency)
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return defaultLoaded()
	}
	return ops.Load(path)
}

func defaultLoaded() (ops.Loaded, error) {
	cfg := ops.FileConfig{
		Registry: ops.RegistryConfig{
			Underlyings: []ops.UnderlyingConfig{{Name: "NIFTY"}},
			Contracts: []ops.ContractConfig{
				{
					Name:       "NIFTY24500CE",
					Underlying: "NIFTY",
					Scale: schema.ScaleSpec{
						PriceScale:    2,
						QuantityScale: 0,
						NotionalScale: 2,
						FeeScale:      2,
					},
				},
			},
		},
		Strategy: ops.DefaultStrategyConfig(),
	}
	return ops.Resolve(cfg)
}

func buildDelegator(loaded ops.Loaded, quotes *broker.QuoteBook) (broker.Delegator, error) {
	switch loaded.Broker.Mode {
	case "sim":
		return broker.NewSim(broker.SimConfig{
			MaxSpreadBps: loaded.Position.MaxSpreadBps,
			FeeBps:       schema.Bps(loaded.Broker.FeeBps),
		}, quotes), nil
	case "dhan":
		if loaded.Broker.BaseURL == "" || loaded.Broker.AccessToken == "" {
			return nil, fmt.Errorf("dhan broker requires baseUrl and accessToken")
		}
		securities := loaded.Securities
		resolve := func(contractID uint32) (string, bool) {
			id, ok := securities[contractID]
			return id, ok
		}
		return broker.NewRest(broker.RestConfig{
			BaseURL:     loaded.Broker.BaseURL,
			AccessToken: loaded.Broker.AccessToken,
			ClientID:    loaded.Broker.ClientID,
			PriceScale:  contractPriceScale(loaded.Registry),
		}, nil, resolve), nil
	default:
		return nil, fmt.Errorf("unsupported broker mode: %s", loaded.Broker.Mode)
	}
}

// contractPriceScale converts the registry's decimal-digit price scale
// into the divisor the REST delegator formats with. All contracts on a
// venue share one price scale.
func contractPriceScale(reg *schema.Registry) int64 {
	digits := schema.Scale(2)
	if contract, ok := reg.ContractAt(0); ok {
		digits = contract.Scale.PriceScale
	}
	scale := int64(1)
	for i := schema.Scale(0); i < digits; i++ {
		scale *= 10
	}
	return scale
}

func openAudit(cfg ops.DatabaseConfig) (*store.Audit, error) {
	client, err := conn.New(conn.Option{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	})
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return nil, err
	}
	return store.NewAudit(client, cfg.QueueCap)
}

func feedFromJournal(ctx context.Context, dir, prefix string, speed float64, noChecksum bool, maxPayload int, engine *core.Engine) error {
	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             dir,
		FilePrefix:      prefix,
		Speed:           speed,
		DisableChecksum: noChecksum,
		MaxPayloadSize:  maxPayload,
	})
	if err != nil {
		return err
	}
	var fed int
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if header.Type != schema.EventTick {
			return nil
		}
		tick, ok := codec.DecodeTick(payload)
		if !ok {
			return fmt.Errorf("decode tick failed at seq %d", header.Seq)
		}
		engine.OnTick(tick)
		fed++
		return nil
	})
	log.Printf("feed completed: ticks=%d", fed)
	return err
}

func restoreRiskState(path string, governor *risk.Governor) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap risk.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	governor.Restore(snap)
	log.Printf("risk state restored: day=%d pnl=%d", snap.Day, snap.DailyPnL)
	return nil
}

func saveRiskState(path string, governor *risk.Governor) error {
	data, err := json.MarshalIndent(governor.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func startProfiler() func() {
	server := os.Getenv("PYROSCOPE_SERVER")
	if server == "" {
		return func() {}
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "options/trader",
		ServerAddress:   server,
		Tags:            map[string]string{"env": os.Getenv("ENV")},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		log.Printf("pyroscope start failed: %v", err)
		return func() {}
	}
	return func() { _ = profiler.Stop() }
}
