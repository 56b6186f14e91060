package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
	"main/internal/stats"
)

const second = int64(time.Second)

func testConfig() Config {
	return Config{
		VolumeSpikeSigma: 3.0,
		VolumeMultiplier: 5.0,
		MinVolume:        100,
		PriceJumpBps:     15,
		PriceJumpWindow:  2 * time.Second,
		OIChangeSigma:    1.5,
		MinOpenInterest:  1000,
		OIConfirmWindow:  240 * time.Second,
		MaxDataAge:       10 * time.Second,
	}
}

func newTestDetector() *Detector {
	tracker := stats.NewTracker(stats.Config{
		VolumeLookback: 60,
		OILookback:     30,
		PriceLookback:  10,
		MinSamples:     3,
	})
	return New(testConfig(), tracker)
}

func tickAt(ts int64, volume int64, mid schema.Price, oi int64) schema.Tick {
	return schema.Tick{
		ContractID:   1,
		TsNano:       ts,
		LastPrice:    mid,
		Volume:       volume,
		OpenInterest: oi,
		BidPrice:     mid - 5,
		AskPrice:     mid + 5,
	}
}

// warmup feeds n quiet ticks at 1s spacing and returns the next timestamp.
func warmup(d *Detector, n int) int64 {
	ts := int64(0)
	oi := int64(100000)
	for i := 0; i < n; i++ {
		ts += second
		vol := int64(90)
		if i%2 == 1 {
			vol = 110
		}
		if i%2 == 0 {
			oi += 10
		} else {
			oi -= 10
		}
		d.OnTick(tickAt(ts, vol, 10000, oi), ts)
	}
	return ts
}

func TestVolumeStageFiresOnSpikeNotEarlier(t *testing.T) {
	d := newTestDetector()
	ts := int64(0)
	oi := int64(100000)
	for i := 0; i < 60; i++ {
		ts += second
		vol := int64(90)
		if i%2 == 1 {
			vol = 110
		}
		res := d.OnTick(tickAt(ts, vol, 10000, oi), ts)
		require.Equal(t, OutcomeNone, res.Outcome, "quiet tick %d must not trigger", i)
	}

	// sample 61: 6x trailing mean, far beyond 3 sigma, flat price
	ts += second
	res := d.OnTick(tickAt(ts, 600, 10000, oi), ts)
	assert.Equal(t, OutcomeVolumeOnly, res.Outcome, "volume stage should fire without a price jump")
}

func TestPairingNeedsVolumeAndPrice(t *testing.T) {
	d := newTestDetector()
	ts := warmup(d, 30)

	ts += second
	res := d.OnTick(tickAt(ts, 600, 10020, 100000), ts)
	require.Equal(t, OutcomePending, res.Outcome)
	assert.Equal(t, 1, d.PendingCount())

	deadline, ok := d.PendingDeadline(1)
	require.True(t, ok)
	assert.Equal(t, ts+240*second, deadline)
}

func TestOIConfirmationInsideWindow(t *testing.T) {
	d := newTestDetector()
	ts := warmup(d, 30)

	trigger := ts + second
	res := d.OnTick(tickAt(trigger, 600, 10020, 100000), trigger)
	require.Equal(t, OutcomePending, res.Outcome)

	// OI change of +500 against a +/-10 change history crosses 1.5 sigma
	confirm := trigger + 200*second
	res = d.OnTick(tickAt(confirm, 100, 10020, 100500), confirm)
	require.Equal(t, OutcomeSignal, res.Outcome)

	sig := res.Signal
	assert.Equal(t, uint32(1), sig.ContractID)
	assert.Equal(t, trigger, sig.VolumeTsNano)
	assert.Equal(t, confirm, sig.OITsNano)
	assert.LessOrEqual(t, sig.OITsNano-sig.VolumeTsNano, 240*second)
	assert.Zero(t, d.PendingCount())
}

func TestOIConfirmationAfterWindowExpires(t *testing.T) {
	d := newTestDetector()
	ts := warmup(d, 30)

	trigger := ts + second
	res := d.OnTick(tickAt(trigger, 600, 10020, 100000), trigger)
	require.Equal(t, OutcomePending, res.Outcome)

	late := trigger + 250*second
	res = d.OnTick(tickAt(late, 100, 10020, 100500), late)
	assert.Equal(t, OutcomeExpired, res.Outcome, "late confirmation must discard the pairing")
	assert.Zero(t, d.PendingCount())
}

func TestSinglePairingPerContract(t *testing.T) {
	d := newTestDetector()
	ts := warmup(d, 30)

	trigger := ts + second
	res := d.OnTick(tickAt(trigger, 600, 10020, 100000), trigger)
	require.Equal(t, OutcomePending, res.Outcome)

	// a second qualifying trigger is ignored while the wait is open
	again := trigger + second
	res = d.OnTick(tickAt(again, 700, 10060, 100000), again)
	assert.Equal(t, OutcomePending, res.Outcome)
	assert.Equal(t, 1, d.PendingCount())
}

func TestStaleTickRejected(t *testing.T) {
	d := newTestDetector()
	ts := warmup(d, 5)

	old := tickAt(ts+second, 600, 10020, 100000)
	now := old.TsNano + 11*second
	res := d.OnTick(old, now)
	assert.Equal(t, OutcomeStale, res.Outcome)
}

func TestOutOfOrderTickDropped(t *testing.T) {
	d := newTestDetector()
	ts := warmup(d, 5)

	res := d.OnTick(tickAt(ts-second, 100, 10000, 100000), ts)
	assert.Equal(t, OutcomeDropped, res.Outcome)
}

func TestSweepExpiresQuietContracts(t *testing.T) {
	d := newTestDetector()
	ts := warmup(d, 30)

	trigger := ts + second
	res := d.OnTick(tickAt(trigger, 600, 10020, 100000), trigger)
	require.Equal(t, OutcomePending, res.Outcome)

	expired := d.Sweep(trigger + 241*second)
	require.Len(t, expired, 1)
	assert.Equal(t, uint32(1), expired[0])
	assert.Zero(t, d.PendingCount())
}
