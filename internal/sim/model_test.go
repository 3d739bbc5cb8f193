package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riffcity/internal/config"
)

func TestSentenceDays(t *testing.T) {
	cases := []struct {
		name   string
		debt   int64
		priors int
		want   int
	}{
		{"small first offense", 5_000, 0, 3},
		{"mid debt first offense", 60_000, 0, 9},
		{"mid debt one prior", 60_000, 1, 14},
		{"debt sign ignored", -60_000, 1, 14},
		{"base capped", 500_000, 0, 14},
		{"final cap binds", 500_000, 3, 21},
		{"multiplier capped at max", 10_000, 10, 16},
		{"zero debt floors at base", 0, 0, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SentenceDays(tc.debt, tc.priors, 14, 21, 1.5, 4.0)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSentenceDaysMonotonicInPriors(t *testing.T) {
	prev := 0
	for priors := 0; priors < 8; priors++ {
		got := SentenceDays(40_000, priors, 14, 21, 1.5, 4.0)
		require.GreaterOrEqual(t, got, prev, "priors=%d", priors)
		require.LessOrEqual(t, got, 21)
		prev = got
	}
}

func TestDaysInDebt(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysInDebt(start, start))
	assert.Equal(t, 0, DaysInDebt(start.Add(-time.Hour), start))
	assert.Equal(t, 0, DaysInDebt(start.Add(23*time.Hour), start))
	assert.Equal(t, 5, DaysInDebt(start.AddDate(0, 0, 5), start))
}

func TestBehaviorRating(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{95, "exemplary"},
		{90, "exemplary"},
		{89, "good"},
		{75, "good"},
		{60, "fair"},
		{59, "poor"},
		{0, "poor"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BehaviorRating(tc.score), "score %d", tc.score)
	}
}

func TestAdjustedReleaseDate(t *testing.T) {
	in := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	full := AdjustedReleaseDate(in, 20, 50)
	assert.Equal(t, in.AddDate(0, 0, 20), full, "poor behavior earns no cut")

	exemplary := AdjustedReleaseDate(in, 20, 95)
	assert.Equal(t, in.AddDate(0, 0, 15), exemplary, "25 percent off")

	// Effective sentence never drops below a single day.
	short := AdjustedReleaseDate(in, 1, 95)
	assert.Equal(t, in.AddDate(0, 0, 1), short)
}

func TestEscapeProbability(t *testing.T) {
	assert.InDelta(t, 0.02, EscapeProbability(0.02, 1), 1e-9)
	assert.InDelta(t, 0.004, EscapeProbability(0.02, 5), 1e-9)
	assert.InDelta(t, 0.02, EscapeProbability(0.02, 0), 1e-9, "difficulty floors at 1")
}

func TestMomentumSignalBounds(t *testing.T) {
	assert.Equal(t, 0.0, MomentumSignal(0, 0, 0))
	assert.InDelta(t, 1.0, MomentumSignal(1, 1, 1), 1e-9)
	assert.InDelta(t, 1.0, MomentumSignal(5, 2, 3), 1e-9, "inputs clamp to [0,1]")
}

func TestOfferPayout(t *testing.T) {
	// base 1000, fame 1000 -> x2, size 10 -> x2, slot x1, no momentum.
	assert.Equal(t, int64(4000), OfferPayout(1000, 1000, 10, 1.0, 0, 1.5))

	// Momentum bonus caps.
	capped := OfferPayout(1000, 1000, 10, 1.0, 2.0, 1.5)
	assert.Equal(t, int64(6000), capped)

	// Slot multiplier scales linearly.
	assert.Equal(t, int64(10000), OfferPayout(1000, 1000, 10, 2.5, 0, 1.5))
}

func TestServiceSlotMultiplier(t *testing.T) {
	s := &Service{cfg: config.Config{SlotMultipliers: map[string]float64{
		"social_post":      1.0,
		"tour_sponsorship": 2.5,
	}}}
	assert.Equal(t, 2.5, s.slotMultiplier("tour_sponsorship"))
	assert.Equal(t, 1.0, s.slotMultiplier("skywriting"), "unknown slot falls back to 1.0")

	// pickSlot favors the richest allowed placement for hot bands.
	assert.Equal(t, "tour_sponsorship", s.pickSlot([]string{"social_post", "tour_sponsorship"}, 0.9))
	assert.Equal(t, "social_post", s.pickSlot([]string{"social_post", "tour_sponsorship"}, 0.1))
	assert.Equal(t, "social_post", s.pickSlot(nil, 0.9))
}

func TestAcceptanceProbability(t *testing.T) {
	assert.InDelta(t, 0.25, AcceptanceProbability(0.25, false, false, false, false), 1e-9)
	assert.InDelta(t, 0.80, AcceptanceProbability(0.25, true, true, true, true), 1e-9)
	assert.InDelta(t, 0.95, AcceptanceProbability(0.90, true, true, true, true), 1e-9, "clamped at 0.95")
}

func TestDrawPowerBounds(t *testing.T) {
	assert.Equal(t, 0.0, DrawPower(1000, 1000, 0, 25, 5), "zero capacity")

	for _, tc := range []struct {
		fame, fans int64
		price      float64
		daysUntil  int
	}{
		{0, 0, 25, 10},
		{100, 500, 25, 2},
		{100_000, 1_000_000, 5, 1},
		{100_000, 1_000_000, 500, 30},
	} {
		p := DrawPower(tc.fame, tc.fans, 200, tc.price, tc.daysUntil)
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, 1.2)
	}

	famous := DrawPower(50_000, 100_000, 200, 25, 5)
	unknown := DrawPower(0, 0, 200, 25, 5)
	assert.Greater(t, famous, unknown)

	cheap := DrawPower(1000, 5000, 200, 15, 5)
	pricey := DrawPower(1000, 5000, 200, 150, 5)
	assert.Greater(t, cheap, pricey)
}

func TestDailyTicketSales(t *testing.T) {
	assert.Equal(t, int64(0), DailyTicketSales(1.0, 100, 100, 0.5, 0.20), "sold out")
	assert.Equal(t, int64(0), DailyTicketSales(1.0, 100, 150, 0.5, 0.20), "oversold never goes negative")
	assert.Equal(t, int64(0), DailyTicketSales(0, 100, 0, 0.99, 0.20))

	// power 1.0, capacity 100, 20% daily cap: expected 20, neutral noise
	// keeps it there.
	assert.Equal(t, int64(20), DailyTicketSales(1.0, 100, 0, 0.5, 0.20))

	// A looser cap sells faster.
	assert.Equal(t, int64(50), DailyTicketSales(1.0, 100, 0, 0.5, 0.50))

	// Never exceeds remaining capacity even at max noise.
	sales := DailyTicketSales(1.2, 100, 95, 0.999, 0.20)
	assert.LessOrEqual(t, sales, int64(5))
	require.GreaterOrEqual(t, sales, int64(0))
}

func TestStreamingRevenue(t *testing.T) {
	assert.Equal(t, int64(0), StreamingRevenue(0, 3, 0.002), "no fans, no streams")
	assert.Equal(t, int64(0), StreamingRevenue(-5, 0, 0.002))
	assert.Equal(t, int64(0), StreamingRevenue(1000, 0, 0), "zero rate pays nothing")

	// 10000 fans, no rotation: 10000 streams at 0.002.
	assert.Equal(t, int64(20), StreamingRevenue(10_000, 0, 0.002))

	// Each rotation slot adds half a stream per fan.
	assert.Equal(t, int64(40), StreamingRevenue(10_000, 2, 0.002))

	// More rotation never pays less.
	assert.GreaterOrEqual(t, StreamingRevenue(5000, 5, 0.002), StreamingRevenue(5000, 1, 0.002))
}

func TestEarlyReleaseCut(t *testing.T) {
	assert.Equal(t, 0.25, EarlyReleaseCut(90))
	assert.Equal(t, 0.15, EarlyReleaseCut(75))
	assert.Equal(t, 0.10, EarlyReleaseCut(60))
	assert.Equal(t, 0.0, EarlyReleaseCut(59))
}
