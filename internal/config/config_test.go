package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/riffcity_test")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 5, cfg.DebtImprisonDays)
	assert.Equal(t, int64(30_000), cfg.DiversionCeiling)
	assert.Equal(t, 14, cfg.SentenceBaseCapDays)
	assert.Equal(t, 21, cfg.SentenceFinalCapDays)
	assert.InDelta(t, 0.35, cfg.EscapeSuccessProb, 1e-9)
	assert.Equal(t, 50, cfg.RadioBuzzBar)
	assert.InDelta(t, 0.002, cfg.StreamRoyaltyRate, 1e-9)
	assert.InDelta(t, 0.20, cfg.MaxDailySalesFraction, 1e-9)
	assert.Equal(t, 6*time.Hour, cfg.ReviewDelay)

	require.NotEmpty(t, cfg.SlotMultipliers)
	assert.Equal(t, 1.0, cfg.SlotMultipliers["social_post"])
	assert.Equal(t, 2.5, cfg.SlotMultipliers["tour_sponsorship"])
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/riffcity_test")
	t.Setenv("RIFFCITY_DEBT_IMPRISON_DAYS", "7")
	t.Setenv("RIFFCITY_ESCAPE_SUCCESS_PROB", "0.5")
	t.Setenv("RIFFCITY_RADIO_BUZZ_BAR", "70")
	t.Setenv("RIFFCITY_MAX_DAILY_SALES_FRACTION", "0.33")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.DebtImprisonDays)
	assert.InDelta(t, 0.5, cfg.EscapeSuccessProb, 1e-9)
	assert.Equal(t, 70, cfg.RadioBuzzBar)
	assert.InDelta(t, 0.33, cfg.MaxDailySalesFraction, 1e-9)
}

func TestLoadFromEnvRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/riffcity_test")
	t.Setenv("RIFFCITY_DEBT_IMPRISON_DAYS", "soon")
	t.Setenv("RIFFCITY_OFFER_EXPIRY_MIN_DAYS", "6")
	t.Setenv("RIFFCITY_OFFER_EXPIRY_MAX_DAYS", "2")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.DebtImprisonDays, "unparseable values keep the default")
	assert.Equal(t, 6, cfg.OfferExpiryMaxDays, "max clamps up to min")
}
