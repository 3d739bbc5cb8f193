package sim

import (
	"errors"
	"math"
	"time"
)

const (
	// Behavior scores run 0-100.
	BehaviorStart          = 50
	BehaviorStartDiversion = 40
	BehaviorMax            = 100

	// Community-service failure converts to a harsher sentence.
	diversionFailureMult = 1.5
)

var (
	ErrOfferNotFound       = errors.New("offer not found")
	ErrOfferNotPending     = errors.New("offer is not pending")
	ErrOfferExpired        = errors.New("offer has expired")
	ErrUnauthorized        = errors.New("offer does not belong to this profile")
	ErrExclusivityConflict = errors.New("active contract conflicts with offer exclusivity")
	ErrBrandConflict       = errors.New("active contract already exists with this brand")
	ErrInvalidInput        = errors.New("invalid input")
)

// SentenceDays computes an imprisonment sentence from debt magnitude and
// prior imprisonments. Base grows one day per 10k of debt on top of a
// three-day floor; repeat offenders get a geometric multiplier. Both the
// base and the final sentence are capped.
func SentenceDays(debt int64, priorImprisonments int, baseCap, finalCap int, factor, maxMult float64) int {
	if debt < 0 {
		debt = -debt
	}
	base := 3 + int(debt/10_000)
	if base > baseCap {
		base = baseCap
	}
	mult := math.Pow(factor, float64(priorImprisonments))
	if mult > maxMult {
		mult = maxMult
	}
	sentence := int(math.Ceil(float64(base) * mult))
	if sentence > finalCap {
		sentence = finalCap
	}
	if sentence < 1 {
		sentence = 1
	}
	return sentence
}

// DaysInDebt counts whole elapsed days since the debt clock started.
func DaysInDebt(now, debtStart time.Time) int {
	if !now.After(debtStart) {
		return 0
	}
	return int(now.Sub(debtStart).Hours() / 24)
}

// BehaviorRating maps a 0-100 behavior score to the rating recorded on
// release.
func BehaviorRating(score int) string {
	switch {
	case score >= 90:
		return "exemplary"
	case score >= 75:
		return "good"
	case score >= 60:
		return "fair"
	default:
		return "poor"
	}
}

// EarlyReleaseCut returns the fraction of the sentence waived for good
// behavior.
func EarlyReleaseCut(score int) float64 {
	switch {
	case score >= 90:
		return 0.25
	case score >= 75:
		return 0.15
	case score >= 60:
		return 0.10
	default:
		return 0
	}
}

// AdjustedReleaseDate applies the early-release credit to the original
// sentence. The credit is recomputed from scratch each day so a rising
// behavior score pulls the date forward monotonically and never pushes
// it past the full sentence.
func AdjustedReleaseDate(imprisonedAt time.Time, sentenceDays int, behaviorScore int) time.Time {
	cut := EarlyReleaseCut(behaviorScore)
	effective := int(math.Ceil(float64(sentenceDays) * (1 - cut)))
	if effective < 1 {
		effective = 1
	}
	return imprisonedAt.AddDate(0, 0, effective)
}

// EscapeProbability is inversely proportional to the prison's configured
// difficulty (1 = minimum security).
func EscapeProbability(baseProb float64, difficulty int) float64 {
	if difficulty < 1 {
		difficulty = 1
	}
	return baseProb / float64(difficulty)
}

// MomentumSignal folds a band's recent trajectory into a single 0+
// bonus factor: fame momentum and chart movement weigh most, gig
// attendance less.
func MomentumSignal(fameMomentum, chartMomentum, attendanceRate float64) float64 {
	signal := 0.5*clampFloat(fameMomentum, 0, 1) +
		0.3*clampFloat(chartMomentum, 0, 1) +
		0.2*clampFloat(attendanceRate, 0, 1)
	return signal
}

// OfferPayout computes a sponsorship payout from the brand's base rate
// scaled by band fame, brand size, the slot's multiplier and a capped
// momentum bonus.
func OfferPayout(baseRate float64, fame int64, sizeIndex int, slotMult, momentum, momentumCap float64) int64 {
	fameMult := 1 + float64(fame)/1000.0
	sizeMult := 1 + float64(sizeIndex)/10.0
	bonus := 1 + momentum
	if bonus > momentumCap {
		bonus = momentumCap
	}
	payout := baseRate * fameMult * sizeMult * slotMult * bonus
	return int64(math.Round(payout))
}

// AcceptanceProbability computes the chance a station accepts a pending
// submission: a base rate plus additive bonuses for meeting the station
// quality bar, genre match, buzz, and regional presence.
func AcceptanceProbability(base float64, qualityMet, genreMatch, buzzMet, strongRegional bool) float64 {
	p := base
	if qualityMet {
		p += 0.20
	}
	if genreMatch {
		p += 0.15
	}
	if buzzMet {
		p += 0.10
	}
	if strongRegional {
		p += 0.10
	}
	return clampFloat(p, 0, 0.95)
}

// DrawPower estimates how strongly a band sells tickets, 0 to 1.2.
// Fame and fan counts saturate rather than scale linearly; expensive
// tickets depress sales; the final days before a show spike demand.
func DrawPower(fame, fans, capacity int64, ticketPrice float64, daysUntil int) float64 {
	if capacity <= 0 {
		return 0
	}
	fameSat := float64(fame) / (float64(fame) + 500.0)
	fanSat := float64(fans) / (float64(fans) + 10.0*float64(capacity))
	base := 0.6*fameSat + 0.4*fanSat

	priceFactor := clampFloat(1.0-(ticketPrice-25.0)/200.0, 0.5, 1.1)

	urgency := 1.0
	if daysUntil <= 3 {
		urgency = 1.15
	}
	advance := 0.0
	if daysUntil >= 14 {
		advance = 0.10
	}
	return clampFloat(base*priceFactor*urgency+advance, 0, 1.2)
}

// DailyTicketSales converts draw power into a day's sales, bounded by
// the venue's remaining capacity. maxFraction caps how much of the room
// one day can book; noise is a uniform [0,1) draw that swings the
// result between 75% and 125% of the deterministic figure.
func DailyTicketSales(power float64, capacity, sold int64, noise, maxFraction float64) int64 {
	remaining := capacity - sold
	if remaining <= 0 {
		return 0
	}
	expected := float64(capacity) * maxFraction * power
	sales := int64(math.Round(expected * (0.75 + 0.5*noise)))
	if sales > remaining {
		sales = remaining
	}
	if sales < 0 {
		sales = 0
	}
	return sales
}

// StreamingRevenue estimates a band's daily streaming payout: each fan
// contributes one base stream, rotation slots amplify reach by half a
// stream per fan per slot, and the royalty rate converts streams to
// cash.
func StreamingRevenue(fans, rotationSlots int64, royaltyRate float64) int64 {
	if fans <= 0 || royaltyRate <= 0 {
		return 0
	}
	streams := float64(fans) * (1 + 0.5*float64(rotationSlots))
	return int64(math.Round(streams * royaltyRate))
}

// cellmates is the flavor pool imprisonments draw from.
var cellmates = []struct {
	Name  string
	Skill string
	Bonus int
}{
	{"Big Tony", "guitar", 3},
	{"Whisper", "songwriting", 5},
	{"The Professor", "music_theory", 4},
	{"Knuckles", "drums", 2},
	{"Saint Mary", "vocals", 4},
	{"Ledger", "business", 3},
	{"Mumbles", "harmonica", 2},
	{"The Duke", "stage_presence", 5},
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
