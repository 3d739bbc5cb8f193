package sim

import (
	"context"
	"fmt"
)

// JobFunc is one runnable sweep.
type JobFunc func(ctx context.Context, trig Trigger) (JobResult, error)

// dailyOrder is the sequence the orchestrator runs. Activities settle
// first so completions feed the same day's debt, behavior and growth
// checks; ledger-affecting jobs run before the passive economy tick.
var dailyOrder = []string{
	"activity_sweep",
	"debt_enforcement",
	"community_service",
	"prison_release",
	"prison_events",
	"offer_generation",
	"offer_expiry",
	"radio_review",
	"ticket_sales",
	"daily_growth",
}

// Jobs returns every runnable job keyed by name. The map is rebuilt per
// call; callers treat it as read-only.
func (s *Service) Jobs() map[string]JobFunc {
	return map[string]JobFunc{
		"activity_sweep":    s.RunActivitySweep,
		"debt_enforcement":  s.RunDebtJob,
		"community_service": s.RunCommunityServiceJob,
		"prison_release":    s.RunPrisonReleaseJob,
		"prison_events":     s.RunPrisonEventsJob,
		"offer_generation":  s.RunOfferGenerationJob,
		"offer_expiry":      s.RunOfferExpiryJob,
		"radio_review":      s.RunRadioReviewJob,
		"ticket_sales":      s.RunTicketSalesJob,
		"daily_growth":      s.RunGrowthJob,
	}
}

// JobNames lists runnable jobs in their daily execution order.
func JobNames() []string {
	out := make([]string, len(dailyOrder))
	copy(out, dailyOrder)
	return out
}

// RunJob dispatches a single named job.
func (s *Service) RunJob(ctx context.Context, name string, trig Trigger) (JobResult, error) {
	fn, ok := s.Jobs()[name]
	if !ok {
		return JobResult{}, fmt.Errorf("%w: unknown job %q", ErrInvalidInput, name)
	}
	return fn(ctx, trig)
}

// RunDaily runs the full daily sequence. A job that fails outright is
// recorded and the sequence continues; the jobs are independent enough
// that skipping the rest would only delay their work by a day.
func (s *Service) RunDaily(ctx context.Context, trig Trigger) (DailyResult, error) {
	var out DailyResult
	jobs := s.Jobs()
	for _, name := range dailyOrder {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := jobs[name](ctx, trig)
		if err != nil {
			out.Errors++
		}
		out.Jobs = append(out.Jobs, res)
		out.Processed += res.Processed
		out.Errors += res.Errors
	}
	return out, nil
}
