package main

import (
	"context"
	"flag"
	"log"
	"sync"
	"time"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/schema"
)

func main() {
	walDir := flag.String("wal-dir", "testdata/ticks", "WAL directory for generated ticks")
	configPath := flag.String("config", "", "Path to JSON config (contract registry)")
	ticks := flag.Int("ticks", 200, "Number of ticks to generate")
	interval := flag.Duration("interval", 0, "Delay between ticks")
	basePrice := flag.Int64("base-price", 10_000, "Base mid price (scaled)")
	baseVolume := flag.Int64("base-volume", 120, "Base tick volume")
	baseOI := flag.Int64("base-oi", 100_000, "Base open interest")
	spread := flag.Int64("spread", 5, "Half spread (scaled)")
	spikeEvery := flag.Int("spike-every", 80, "Samples between spike episodes per contract (0=quiet)")
	spikeMult := flag.Int64("spike-mult", 8, "Spike volume multiplier")
	spikeJump := flag.Int64("spike-jump-bps", 30, "Spike price jump in basis points")
	spikeOI := flag.Int64("spike-oi-delta", 0, "Spike open-interest delta (0=base/20)")
	flag.Parse()

	if *ticks <= 0 {
		log.Fatalf("ticks must be > 0")
	}

	registry, err := loadRegistry(*configPath)
	if err != nil {
		log.Fatalf("registry load failed: %v", err)
	}

	generator, err := feed.NewGenerator(registry, feed.Config{
		BasePrice:       schema.Price(*basePrice),
		BaseVolume:      *baseVolume,
		BaseOI:          *baseOI,
		Spread:          schema.Price(*spread),
		SpikeEvery:      *spikeEvery,
		SpikeVolumeMult: *spikeMult,
		SpikeJumpBps:    schema.Bps(*spikeJump),
		SpikeOIDelta:    *spikeOI,
	})
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	ctx := context.Background()
	cfg := recorder.DefaultConfig(*walDir)
	writer, err := recorder.NewWriter(cfg)
	if err != nil {
		log.Fatalf("wal init failed: %v", err)
	}
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("wal start failed: %v", err)
	}

	queue := bus.NewQueue(1024)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	metrics := obs.NewMetrics()

	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx, func(e bus.Event) {
			if err := writer.TryAppend(e.Header, e.Payload); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		})
	}()

	seq := uint64(0)
	for i := 0; i < *ticks; i++ {
		seq++
		now := time.Now().UTC()
		tick := generator.Next(now)
		header := schema.NewHeader(schema.EventTick, 1, seq, tick.TsNano, now.UnixNano())
		payload := codec.EncodeTick(nil, tick)
		if err := queue.TryPublish(bus.Event{Header: header, Payload: payload}); err != nil {
			if err == bus.ErrQueueFull {
				metrics.IncQueueDrop()
			} else if err == bus.ErrQueueClosed {
				metrics.IncQueueClosed()
			}
			log.Fatalf("publish failed: %v", err)
		}
		metrics.ObserveEvent(header)
		if *interval > 0 && i < *ticks-1 {
			time.Sleep(*interval)
		}
	}

	queue.Close()
	wg.Wait()

	var appendErr error
	select {
	case appendErr = <-errCh:
	default:
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("wal close failed: %v", err)
	}
	if appendErr != nil {
		log.Fatalf("wal append failed: %v", appendErr)
	}
	snapshot := metrics.Snapshot()
	log.Printf("generated ticks=%d drops=%d", *ticks, snapshot.QueueDrops)
}

func loadRegistry(path string) (*schema.Registry, error) {
	if path == "" {
		return defaultRegistry()
	}
	loaded, err := ops.Load(path)
	if err != nil {
		return nil, err
	}
	return loaded.Registry, nil
}

func defaultRegistry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	underlyingID, err := reg.AddUnderlying("NIFTY")
	if err != nil {
		return nil, err
	}
	scale := schema.ScaleSpec{
		PriceScale:    2,
		QuantityScale: 0,
		NotionalScale: 2,
		FeeScale:      2,
	}
	if _, err := reg.AddContract("NIFTY24500CE", underlyingID, 0, scale); err != nil {
		return nil, err
	}
	if _, err := reg.AddContract("NIFTY24500PE", underlyingID, 0, scale); err != nil {
		return nil, err
	}
	return reg, nil
}
