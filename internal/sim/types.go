package sim

import "time"

// Trigger identifies what caused a job invocation. Both fields are
// free-text and flow straight into the run ledger.
type Trigger struct {
	TriggeredBy string
	RequestID   string
}

// JobResult is the aggregate outcome of one batch sweep.
type JobResult struct {
	Job           string         `json:"job"`
	Processed     int            `json:"processed"`
	Errors        int            `json:"errors"`
	ItemsAffected int            `json:"items_affected"`
	Counters      map[string]int `json:"counters,omitempty"`
	Summary       string         `json:"summary,omitempty"`
}

func newJobResult(job string) JobResult {
	return JobResult{Job: job, Counters: map[string]int{}}
}

func (r *JobResult) bump(key string) {
	r.Counters[key]++
	r.ItemsAffected++
}

// DailyResult aggregates the orchestrated daily run.
type DailyResult struct {
	Jobs      []JobResult `json:"jobs"`
	Processed int         `json:"processed"`
	Errors    int         `json:"errors"`
}

type AcceptOfferInput struct {
	OfferID   int64
	ProfileID int64
}

type AcceptOfferResult struct {
	ContractID int64     `json:"contract_id"`
	OfferID    int64     `json:"offer_id"`
	Payout     int64     `json:"payout"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
}

// debtorRow is one candidate of the debt sweep.
type debtorRow struct {
	ID                 int64
	DisplayName        string
	Cash               int64
	City               string
	TotalImprisonments int
	DebtStartAt        *time.Time
}

// offerCandidate is one eligible band considered by a brand, with the
// momentum signals the weighted sampler scores on.
type offerCandidate struct {
	BandID         int64
	Name           string
	Fame           int64
	FameMomentum   float64
	ChartMomentum  float64
	AttendanceRate float64
}

type brandRow struct {
	ID                  int64
	Name                string
	Tier                int
	SizeIndex           int
	Budget              int64
	BaseRate            float64
	AllowedSlots        []string
	ExclusivityCategory string
}

type activityRow struct {
	ID        int64
	ProfileID int64
	Type      string
	StartsAt  time.Time
	EndsAt    time.Time
	LinkedID  *int64
}

type submissionRow struct {
	ID              int64
	SongID          int64
	StationID       int64
	BandID          int64
	SongTitle       string
	SongQuality     int
	SongBuzz        int
	BandGenre       string
	BandRegionFame  int64
	StationRegion   string
	StationQuality  int
	StationGenres   []string
	MinRegionalFame int64
}
