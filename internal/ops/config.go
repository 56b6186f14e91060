package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"main/internal/detector"
	"main/internal/position"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/stats"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry RegistryConfig     `json:"registry"`
	Strategy StrategyConfig     `json:"strategy"`
	Broker   BrokerConfig       `json:"broker"`
	Database DatabaseConfig     `json:"database"`
	Features FeatureFlagsConfig `json:"features"`
}

// RegistryConfig defines underlying and contract mappings.
type RegistryConfig struct {
	Underlyings []UnderlyingConfig `json:"underlyings"`
	Contracts   []ContractConfig   `json:"contracts"`
}

// UnderlyingConfig describes an underlying entry.
type UnderlyingConfig struct {
	Name string `json:"name"`
}

// ContractConfig describes one option contract entry.
type ContractConfig struct {
	Name       string           `json:"name"`
	Underlying string           `json:"underlying"`
	Expiry     int64            `json:"expiry"`
	Security   string           `json:"security"`
	Scale      schema.ScaleSpec `json:"scale"`
}

// StrategyConfig is the complete parameter set of the strategy. It is
// immutable after Load; components receive resolved copies.
type StrategyConfig struct {
	Name string `json:"name"`

	// volume spike detection
	VolumeSpikeSigma float64 `json:"volumeSpikeSigma"`
	VolumeMultiplier float64 `json:"volumeMultiplier"`
	VolumeLookback   int     `json:"volumeLookback"`

	// price jump detection
	PriceJumpBps        schema.Bps `json:"priceJumpBps"`
	PriceJumpWindowSecs int        `json:"priceJumpWindowSeconds"`
	PriceLookback       int        `json:"priceLookback"`

	// open-interest confirmation
	OIChangeSigma       float64 `json:"oiChangeSigma"`
	OIConfirmWindowSecs int     `json:"oiConfirmationWindowSeconds"`
	OILookback          int     `json:"oiLookback"`

	// position sizing (lots)
	ProbeQty schema.Quantity `json:"probeQty"`
	ScaleQty schema.Quantity `json:"scaleQty"`
	MaxQty   schema.Quantity `json:"maxQty"`

	// exit rules
	ProfitTargetBps schema.Bps `json:"profitTargetBps"`
	StopLossBps     schema.Bps `json:"stopLossBps"`
	TimeoutMinutes  int        `json:"timeoutMinutes"`

	// daily limits
	DailyLossLimit       schema.Notional `json:"dailyLossLimit"`
	MaxPositionsPerDay   int             `json:"maxPositionsPerDay"`
	MaxConsecutiveLosses int             `json:"maxConsecutiveLosses"`

	// execution
	MaxSpreadBps            schema.Bps   `json:"maxSpreadBps"`
	PartialFillThresholdPct float64      `json:"partialFillThresholdPct"`
	PartialFillTimeoutSecs  int          `json:"partialFillTimeoutSeconds"`
	RequoteMaxAttempts      int          `json:"requoteMaxAttempts"`
	RequoteChaseBps         schema.Bps   `json:"requoteChaseBps"`
	TickSize                schema.Price `json:"tickSize"`

	// market timing, exchange-local "HH:MM"
	MarketOpen       string   `json:"marketOpen"`
	MarketClose      string   `json:"marketClose"`
	WarmupUntil      string   `json:"warmupUntil"`
	ExcludeFirstHour bool     `json:"excludeFirstHour"`
	ExcludeLastHour  bool     `json:"excludeLastHour"`
	ExcludeExpiryDay bool     `json:"excludeExpiryDay"`
	BlackoutDays     []int64  `json:"blackoutDays"`
	Timezone         string   `json:"timezone"`

	// margin
	MarginAvailable      schema.Notional `json:"marginAvailable"`
	MarginUtilizationPct float64         `json:"marginUtilizationPct"`

	// data validation
	MaxDataAgeSecs  int   `json:"maxDataAgeSeconds"`
	MinVolume       int64 `json:"minVolume"`
	MinOpenInterest int64 `json:"minOpenInterest"`

	KillSwitch bool `json:"killSwitch"`
}

// BrokerConfig selects and parameterizes the execution venue.
type BrokerConfig struct {
	Mode        string `json:"mode"`
	BaseURL     string `json:"baseUrl"`
	AccessToken string `json:"accessToken"`
	ClientID    string `json:"clientId"`
	Workers     int    `json:"workers"`
	QueueCap    int    `json:"queueCap"`
	FeeBps      int64  `json:"feeBps"`
}

// DatabaseConfig points the audit store at PostgreSQL.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
	QueueCap int    `json:"queueCap"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableAuditStore *bool `json:"enableAuditStore"`
	EnableRecorder   *bool `json:"enableRecorder"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableAuditStore bool
	EnableRecorder   bool
}

// DefaultStrategyConfig returns the production defaults for the
// volume-OI confirm strategy.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Name:             "volume_oi_confirm",
		VolumeSpikeSigma: 3.0,
		VolumeMultiplier: 5.0,
		VolumeLookback:   60,

		PriceJumpBps:        15,
		PriceJumpWindowSecs: 2,
		PriceLookback:       10,

		OIChangeSigma:       1.5,
		OIConfirmWindowSecs: 240,
		OILookback:          30,

		ProbeQty: 2,
		ScaleQty: 8,
		MaxQty:   10,

		ProfitTargetBps: 4000,
		StopLossBps:     2500,
		TimeoutMinutes:  10,

		DailyLossLimit:       25_000_00,
		MaxPositionsPerDay:   20,
		MaxConsecutiveLosses: 5,

		MaxSpreadBps:            30,
		PartialFillThresholdPct: 80,
		PartialFillTimeoutSecs:  1,
		RequoteMaxAttempts:      3,
		RequoteChaseBps:         10,
		TickSize:                5,

		MarketOpen:       "09:15",
		MarketClose:      "15:30",
		WarmupUntil:      "09:30",
		ExcludeFirstHour: true,
		ExcludeLastHour:  true,
		ExcludeExpiryDay: true,
		Timezone:         "Asia/Kolkata",

		MarginAvailable:      1_000_000_00,
		MarginUtilizationPct: 40,

		MaxDataAgeSecs:  10,
		MinVolume:       100,
		MinOpenInterest: 1000,
	}
}

// Validate checks every parameter the way a pre-start review would,
// collecting all problems instead of stopping at the first.
func (c StrategyConfig) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.VolumeSpikeSigma < 1.0 {
		add("volumeSpikeSigma must be >= 1.0")
	}
	if c.VolumeMultiplier < 1.0 {
		add("volumeMultiplier must be >= 1.0")
	}
	if c.PriceJumpBps <= 0 {
		add("priceJumpBps must be > 0")
	}
	if c.OIChangeSigma < 1.0 {
		add("oiChangeSigma must be >= 1.0")
	}
	if c.VolumeLookback <= 0 || c.OILookback <= 0 || c.PriceLookback <= 0 {
		add("lookback periods must be > 0")
	}
	if c.PriceJumpWindowSecs <= 0 || c.OIConfirmWindowSecs <= 0 {
		add("detection windows must be > 0")
	}

	if c.ProbeQty <= 0 {
		add("probeQty must be > 0")
	}
	if c.ScaleQty <= 0 {
		add("scaleQty must be > 0")
	}
	if c.MaxQty < c.ProbeQty+c.ScaleQty {
		add("maxQty must be >= probeQty + scaleQty")
	}

	if c.ProfitTargetBps <= 0 {
		add("profitTargetBps must be > 0")
	}
	if c.StopLossBps <= 0 {
		add("stopLossBps must be > 0")
	}
	if c.TimeoutMinutes <= 0 {
		add("timeoutMinutes must be > 0")
	}

	if c.MaxSpreadBps <= 0 {
		add("maxSpreadBps must be > 0")
	}
	if c.PartialFillThresholdPct <= 0 || c.PartialFillThresholdPct > 100 {
		add("partialFillThresholdPct must be in (0, 100]")
	}
	if c.RequoteMaxAttempts < 0 {
		add("requoteMaxAttempts must be >= 0")
	}
	if c.MarginUtilizationPct <= 0 || c.MarginUtilizationPct > 100 {
		add("marginUtilizationPct must be in (0, 100]")
	}

	open, errOpen := parseClock(c.MarketOpen)
	closeMin, errClose := parseClock(c.MarketClose)
	warmup, errWarm := parseClock(c.WarmupUntil)
	if errOpen != nil {
		add("marketOpen: %v", errOpen)
	}
	if errClose != nil {
		add("marketClose: %v", errClose)
	}
	if errWarm != nil {
		add("warmupUntil: %v", errWarm)
	}
	if errOpen == nil && errClose == nil && errWarm == nil {
		if open >= closeMin {
			add("marketOpen must be before marketClose")
		}
		if warmup <= open {
			add("warmupUntil must be after marketOpen")
		}
	}

	if c.MaxDataAgeSecs <= 0 {
		add("maxDataAgeSeconds must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid strategy config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TradingWindow derives the admission window after warmup and
// first/last hour filters, as minutes of the exchange day.
func (c StrategyConfig) TradingWindow() (openMinute, closeMinute int, err error) {
	openMinute, err = parseClock(c.WarmupUntil)
	if err != nil {
		return 0, 0, err
	}
	closeMinute, err = parseClock(c.MarketClose)
	if err != nil {
		return 0, 0, err
	}
	if c.ExcludeFirstHour {
		openMinute += 60
	}
	if c.ExcludeLastHour {
		closeMinute -= 60
	}
	return openMinute, closeMinute, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry   *schema.Registry
	Strategy   StrategyConfig
	Stats      stats.Config
	Detector   detector.Config
	Position   position.Config
	Risk       risk.Config
	Broker     BrokerConfig
	Database   DatabaseConfig
	Features   FeatureFlags
	Securities map[uint32]string
}

// Load reads a JSON config file, applies defaults, validates, and
// resolves component configs.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	cfg := FileConfig{Strategy: DefaultStrategyConfig()}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed FileConfig and builds component configs.
func Resolve(cfg FileConfig) (Loaded, error) {
	if err := cfg.Strategy.Validate(); err != nil {
		return Loaded{}, err
	}
	registry, securities, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	s := cfg.Strategy
	openMinute, closeMinute, err := s.TradingWindow()
	if err != nil {
		return Loaded{}, err
	}
	loc, err := resolveLocation(s.Timezone)
	if err != nil {
		return Loaded{}, err
	}

	skip := make(map[int64]struct{}, len(s.BlackoutDays))
	for _, day := range s.BlackoutDays {
		skip[day] = struct{}{}
	}
	if s.ExcludeExpiryDay {
		for i := 0; i < registry.ContractCount(); i++ {
			contract, ok := registry.ContractAt(i)
			if ok && contract.Expiry > 0 {
				skip[contract.Expiry] = struct{}{}
			}
		}
	}

	marginBudget := schema.Notional(float64(s.MarginAvailable) * s.MarginUtilizationPct / 100)

	broker := cfg.Broker
	if broker.Mode == "" {
		broker.Mode = "sim"
	}
	if broker.Workers <= 0 {
		broker.Workers = 2
	}
	if broker.QueueCap <= 0 {
		broker.QueueCap = 256
	}

	return Loaded{
		Registry: registry,
		Strategy: s,
		Stats: stats.Config{
			VolumeLookback: s.VolumeLookback,
			OILookback:     s.OILookback,
			PriceLookback:  s.PriceLookback,
		},
		Detector: detector.Config{
			VolumeSpikeSigma: s.VolumeSpikeSigma,
			VolumeMultiplier: s.VolumeMultiplier,
			MinVolume:        s.MinVolume,
			PriceJumpBps:     s.PriceJumpBps,
			PriceJumpWindow:  time.Duration(s.PriceJumpWindowSecs) * time.Second,
			OIChangeSigma:    s.OIChangeSigma,
			MinOpenInterest:  s.MinOpenInterest,
			OIConfirmWindow:  time.Duration(s.OIConfirmWindowSecs) * time.Second,
			MaxDataAge:       time.Duration(s.MaxDataAgeSecs) * time.Second,
		},
		Position: position.Config{
			ProbeQty:           s.ProbeQty,
			ScaleQty:           s.ScaleQty,
			MaxQty:             s.MaxQty,
			ProfitTargetBps:    s.ProfitTargetBps,
			StopLossBps:        s.StopLossBps,
			MaxHold:            time.Duration(s.TimeoutMinutes) * time.Minute,
			ScaleWindow:        time.Duration(s.OIConfirmWindowSecs) * time.Second,
			MaxSpreadBps:       s.MaxSpreadBps,
			PartialFillRatio:   s.PartialFillThresholdPct / 100,
			PartialFillTimeout: time.Duration(s.PartialFillTimeoutSecs) * time.Second,
			RequoteMaxAttempts: s.RequoteMaxAttempts,
			RequoteChaseBps:    s.RequoteChaseBps,
			TickSize:           s.TickSize,
		},
		Risk: risk.Config{
			KillSwitch:           s.KillSwitch,
			DailyLossLimit:       s.DailyLossLimit,
			MaxPositionsPerDay:   s.MaxPositionsPerDay,
			MaxConsecutiveLosses: s.MaxConsecutiveLosses,
			MarginBudget:         marginBudget,
			Window: risk.Window{
				OpenMinute:  openMinute,
				CloseMinute: closeMinute,
				Location:    loc,
				Skip:        skip,
			},
		},
		Broker:     broker,
		Database:   cfg.Database,
		Features:   resolveFeatures(cfg.Features),
		Securities: securities,
	}, nil
}

func resolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, map[uint32]string, error) {
	reg := schema.NewRegistry()
	securities := make(map[uint32]string)
	for _, u := range cfg.Underlyings {
		if _, err := reg.AddUnderlying(u.Name); err != nil {
			return nil, nil, err
		}
	}
	for _, contract := range cfg.Contracts {
		underlyingID, ok := reg.UnderlyingIDByName(contract.Underlying)
		if !ok {
			return nil, nil, fmt.Errorf("underlying not found: %s", contract.Underlying)
		}
		if err := validateScale(contract.Scale); err != nil {
			return nil, nil, fmt.Errorf("invalid scale for %s: %w", contract.Name, err)
		}
		id, err := reg.AddContract(contract.Name, underlyingID, contract.Expiry, contract.Scale)
		if err != nil {
			return nil, nil, err
		}
		if contract.Security != "" {
			securities[uint32(id)] = contract.Security
		}
	}
	return reg, securities, nil
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.NotionalScale < 0 || scale.FeeScale < 0 {
		return fmt.Errorf("scale must be >= 0")
	}
	return nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableAuditStore: false,
		EnableRecorder:   true,
	}
	if cfg.EnableAuditStore != nil {
		flags.EnableAuditStore = *cfg.EnableAuditStore
	}
	if cfg.EnableRecorder != nil {
		flags.EnableRecorder = *cfg.EnableRecorder
	}
	return flags
}
