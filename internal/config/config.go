package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once in main and handed to every job as a dependency.
// Numeric tuning values are simulation inputs, not law.
type Config struct {
	Addr             string
	DatabaseURL      string
	WorkerTickEvery  time.Duration
	DiscordBotToken  string
	DiscordChannelID string

	// Debt / imprisonment.
	DebtImprisonDays     int
	DiversionCeiling     int64
	DiversionSessions    int
	DiversionDeadline    time.Duration
	SentenceBaseCapDays  int
	SentenceFinalCapDays int
	RecidivismFactor     float64
	RecidivismMaxMult    float64

	// Prison.
	DailyBehaviorGain     int
	CreativeBehaviorBonus int
	EscapeBaseProb        float64
	EscapeSuccessProb     float64
	EscapeMaxAttempts     int
	PrisonEventProb       float64

	// Offers.
	OffersPerBrand     int
	OfferMinFame       int64
	OfferCooldown      time.Duration
	OfferExpiryMinDays int
	OfferExpiryMaxDays int
	ExpiryNoticeWindow time.Duration
	MomentumBonusCap   float64
	SlotMultipliers    map[string]float64

	// Radio.
	ReviewDelay        time.Duration
	RadioBaseAcceptPct float64
	RadioBuzzBar       int

	// Growth.
	ProfileFameGainMax    int64
	BandFameGainMin       int64
	BandFameGainMax       int64
	BandFanGainMin        int64
	BandFanGainMax        int64
	MemberShare           float64
	FameToFansRate        float64
	StreamRoyaltyRate     float64
	MaxDailySalesFraction float64
}

// defaultSlotMultipliers scales offer payouts by placement type.
func defaultSlotMultipliers() map[string]float64 {
	return map[string]float64{
		"social_post":      1.0,
		"photo_shoot":      1.1,
		"radio_spot":       1.2,
		"music_video":      1.5,
		"tv_spot":          1.8,
		"endorsement":      2.0,
		"tour_sponsorship": 2.5,
	}
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadFromEnv() (Config, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("RIFFCITY_API_ADDR", ":8080")
	}

	cfg := Config{
		Addr:             addr,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		WorkerTickEvery:  envDurationDefault("RIFFCITY_WORKER_TICK_EVERY", 24*time.Hour),
		DiscordBotToken:  strings.TrimSpace(os.Getenv("RIFFCITY_DISCORD_BOT_TOKEN")),
		DiscordChannelID: strings.TrimSpace(os.Getenv("RIFFCITY_DISCORD_CHANNEL_ID")),

		DebtImprisonDays:     envIntDefault("RIFFCITY_DEBT_IMPRISON_DAYS", 5),
		DiversionCeiling:     envInt64Default("RIFFCITY_DIVERSION_CEILING", 30_000),
		DiversionSessions:    envIntDefault("RIFFCITY_DIVERSION_SESSIONS", 10),
		DiversionDeadline:    envDurationDefault("RIFFCITY_DIVERSION_DEADLINE", 7*24*time.Hour),
		SentenceBaseCapDays:  envIntDefault("RIFFCITY_SENTENCE_BASE_CAP", 14),
		SentenceFinalCapDays: envIntDefault("RIFFCITY_SENTENCE_FINAL_CAP", 21),
		RecidivismFactor:     envFloatDefault("RIFFCITY_RECIDIVISM_FACTOR", 1.5),
		RecidivismMaxMult:    envFloatDefault("RIFFCITY_RECIDIVISM_MAX_MULT", 4.0),

		DailyBehaviorGain:     envIntDefault("RIFFCITY_DAILY_BEHAVIOR_GAIN", 1),
		CreativeBehaviorBonus: envIntDefault("RIFFCITY_CREATIVE_BEHAVIOR_BONUS", 2),
		EscapeBaseProb:        envFloatDefault("RIFFCITY_ESCAPE_BASE_PROB", 0.02),
		EscapeSuccessProb:     envFloatDefault("RIFFCITY_ESCAPE_SUCCESS_PROB", 0.35),
		EscapeMaxAttempts:     envIntDefault("RIFFCITY_ESCAPE_MAX_ATTEMPTS", 3),
		PrisonEventProb:       envFloatDefault("RIFFCITY_PRISON_EVENT_PROB", 0.15),

		OffersPerBrand:     envIntDefault("RIFFCITY_OFFERS_PER_BRAND", 3),
		OfferMinFame:       envInt64Default("RIFFCITY_OFFER_MIN_FAME", 100),
		OfferCooldown:      envDurationDefault("RIFFCITY_OFFER_COOLDOWN", 14*24*time.Hour),
		OfferExpiryMinDays: envIntDefault("RIFFCITY_OFFER_EXPIRY_MIN_DAYS", 3),
		OfferExpiryMaxDays: envIntDefault("RIFFCITY_OFFER_EXPIRY_MAX_DAYS", 7),
		ExpiryNoticeWindow: envDurationDefault("RIFFCITY_EXPIRY_NOTICE_WINDOW", 24*time.Hour),
		MomentumBonusCap:   envFloatDefault("RIFFCITY_MOMENTUM_BONUS_CAP", 1.5),
		SlotMultipliers:    defaultSlotMultipliers(),

		ReviewDelay:        envDurationDefault("RIFFCITY_RADIO_REVIEW_DELAY", 6*time.Hour),
		RadioBaseAcceptPct: envFloatDefault("RIFFCITY_RADIO_BASE_ACCEPT", 0.25),
		RadioBuzzBar:       envIntDefault("RIFFCITY_RADIO_BUZZ_BAR", 50),

		ProfileFameGainMax:    envInt64Default("RIFFCITY_PROFILE_FAME_GAIN_MAX", 3),
		BandFameGainMin:       envInt64Default("RIFFCITY_BAND_FAME_GAIN_MIN", 1),
		BandFameGainMax:       envInt64Default("RIFFCITY_BAND_FAME_GAIN_MAX", 8),
		BandFanGainMin:        envInt64Default("RIFFCITY_BAND_FAN_GAIN_MIN", 5),
		BandFanGainMax:        envInt64Default("RIFFCITY_BAND_FAN_GAIN_MAX", 40),
		MemberShare:           envFloatDefault("RIFFCITY_MEMBER_SHARE", 0.25),
		FameToFansRate:        envFloatDefault("RIFFCITY_FAME_TO_FANS_RATE", 2.0),
		StreamRoyaltyRate:     envFloatDefault("RIFFCITY_STREAM_ROYALTY_RATE", 0.002),
		MaxDailySalesFraction: envFloatDefault("RIFFCITY_MAX_DAILY_SALES_FRACTION", 0.20),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OfferExpiryMaxDays < cfg.OfferExpiryMinDays {
		cfg.OfferExpiryMaxDays = cfg.OfferExpiryMinDays
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("RIFFCTL_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
