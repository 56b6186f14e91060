// Package feed produces synthetic option-chain ticks for paper trading
// and tooling. Ticks come out in timestamp order per contract.
package feed

import (
	"fmt"
	"time"

	"main/internal/schema"
)

// Config shapes the synthetic stream. Quiet traffic cycles around the
// base levels; every SpikeEvery samples a contract gets a volume burst
// with a price jump, followed one sample later by an open-interest
// shift, so the full confirmation path fires without a live feed.
type Config struct {
	BasePrice  schema.Price
	BaseVolume int64
	BaseOI     int64
	Spread     schema.Price

	SpikeEvery      int // samples between spike episodes per contract, 0 disables
	SpikeVolumeMult int64
	SpikeJumpBps    schema.Bps
	SpikeOIDelta    int64
}

// Generator creates deterministic ticks for all contracts in a registry.
type Generator struct {
	contracts []schema.Contract
	cfg       Config
	index     int
	counts    map[uint32]int64
}

// NewGenerator creates a generator for all contracts in the registry.
func NewGenerator(reg *schema.Registry, cfg Config) (*Generator, error) {
	if reg == nil || reg.ContractCount() == 0 {
		return nil, fmt.Errorf("registry has no contracts")
	}
	contracts := make([]schema.Contract, 0, reg.ContractCount())
	for i := 0; i < reg.ContractCount(); i++ {
		contract, ok := reg.ContractAt(i)
		if !ok {
			continue
		}
		contracts = append(contracts, contract)
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("registry has no contracts")
	}
	if cfg.BasePrice <= 0 {
		return nil, fmt.Errorf("base price must be > 0")
	}
	if cfg.BaseVolume <= 0 {
		cfg.BaseVolume = 100
	}
	if cfg.BaseOI <= 0 {
		cfg.BaseOI = 100_000
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 1
	}
	if cfg.SpikeVolumeMult <= 0 {
		cfg.SpikeVolumeMult = 8
	}
	if cfg.SpikeJumpBps <= 0 {
		cfg.SpikeJumpBps = 30
	}
	if cfg.SpikeOIDelta == 0 {
		cfg.SpikeOIDelta = cfg.BaseOI / 20
	}
	return &Generator{
		contracts: contracts,
		cfg:       cfg,
		counts:    make(map[uint32]int64),
	}, nil
}

// Next creates the next tick, round-robin over contracts.
func (g *Generator) Next(now time.Time) schema.Tick {
	contract := g.contracts[g.index]
	g.index = (g.index + 1) % len(g.contracts)

	id := uint32(contract.ID)
	n := g.counts[id]
	g.counts[id] = n + 1

	cfg := g.cfg
	mid := cfg.BasePrice
	if n%2 == 1 {
		mid += cfg.Spread
	}
	volume := cfg.BaseVolume + (n%5)*cfg.BaseVolume/20
	oi := cfg.BaseOI
	if n%3 == 1 {
		oi += cfg.BaseOI / 200
	} else if n%3 == 2 {
		oi -= cfg.BaseOI / 200
	}

	if cfg.SpikeEvery > 1 {
		switch n % int64(cfg.SpikeEvery) {
		case int64(cfg.SpikeEvery) - 2:
			volume = cfg.BaseVolume * cfg.SpikeVolumeMult
			mid = cfg.BasePrice + schema.Price(int64(cfg.BasePrice)*int64(cfg.SpikeJumpBps)/10_000)
		case int64(cfg.SpikeEvery) - 1:
			mid = cfg.BasePrice + schema.Price(int64(cfg.BasePrice)*int64(cfg.SpikeJumpBps)/10_000)
			oi = cfg.BaseOI + cfg.SpikeOIDelta
		}
	}

	return schema.Tick{
		ContractID:   id,
		TsNano:       now.UnixNano(),
		LastPrice:    mid,
		Volume:       volume,
		OpenInterest: oi,
		BidPrice:     mid - cfg.Spread,
		AskPrice:     mid + cfg.Spread,
	}
}
