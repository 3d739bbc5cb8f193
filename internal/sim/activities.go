package sim

import (
	"context"
	"fmt"
	"time"
)

// Activity types known to the lifecycle manager. Each maps to a
// completion handler; an unknown type completes with no side effects.
const (
	ActivityGig            = "gig"
	ActivityRehearsal      = "rehearsal"
	ActivityRecording      = "recording"
	ActivityWorkShift      = "work_shift"
	ActivityUniversity     = "university"
	ActivityReading        = "reading"
	ActivitySongwriting    = "songwriting"
	ActivityHealthRecovery = "health_recovery"
	ActivityPRAppearance   = "pr_appearance"
	ActivityFilm           = "film_production"
)

// RunActivitySweep advances every time-boxed activity through its state
// machine: scheduled -> in_progress -> completed, or scheduled ->
// missed when the window passed without a start. A completion handler
// that fails marks the activity missed rather than completed; a failed
// handler must not silently count as success.
func (s *Service) RunActivitySweep(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "activity_sweep", "RunActivitySweep", trig, func(ctx context.Context, res *JobResult) error {
		now := s.now()

		started, err := s.autoStartActivities(ctx, now)
		if err != nil {
			return fmt.Errorf("auto-start sweep: %w", err)
		}
		res.Counters["started"] = started
		res.ItemsAffected += started

		if err := s.autoCompleteActivities(ctx, now, res); err != nil {
			return fmt.Errorf("auto-complete sweep: %w", err)
		}

		missed, err := s.markMissedActivities(ctx, now)
		if err != nil {
			return fmt.Errorf("missed sweep: %w", err)
		}
		res.Counters["missed"] += missed
		res.ItemsAffected += missed
		return nil
	})
}

func (s *Service) autoStartActivities(ctx context.Context, now time.Time) (int, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE game.activities
		SET status = 'in_progress', updated_at = now()
		WHERE status = 'scheduled' AND starts_at <= $1 AND ends_at > $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (s *Service) autoCompleteActivities(ctx context.Context, now time.Time, res *JobResult) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, profile_id, activity_type, starts_at, ends_at, linked_id
		FROM game.activities
		WHERE status = 'in_progress' AND ends_at <= $1
		ORDER BY ends_at
	`, now)
	if err != nil {
		return err
	}
	var due []activityRow
	for rows.Next() {
		var a activityRow
		if err := rows.Scan(&a.ID, &a.ProfileID, &a.Type, &a.StartsAt, &a.EndsAt, &a.LinkedID); err != nil {
			rows.Close()
			return err
		}
		due = append(due, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, a := range due {
		res.Processed++
		if err := s.completeActivity(ctx, a); err != nil {
			s.itemFailed(res, "activity_sweep", a.ID, err)
			if _, mErr := s.db.Exec(ctx, `
				UPDATE game.activities SET status = 'missed', updated_at = now()
				WHERE id = $1 AND status = 'in_progress'
			`, a.ID); mErr != nil {
				s.log.Error("missed transition failed", "activity_id", a.ID, "err", mErr)
			}
			continue
		}
		res.bump("completed")
	}
	return nil
}

func (s *Service) completeActivity(ctx context.Context, a activityRow) error {
	if handler, ok := s.activityHandlers()[a.Type]; ok {
		if err := handler(ctx, a); err != nil {
			return fmt.Errorf("handler %s: %w", a.Type, err)
		}
	}
	cmd, err := s.db.Exec(ctx, `
		UPDATE game.activities SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'in_progress'
	`, a.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("activity %d transitioned concurrently", a.ID)
	}
	return nil
}

func (s *Service) markMissedActivities(ctx context.Context, now time.Time) (int, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE game.activities
		SET status = 'missed', updated_at = now()
		WHERE status = 'scheduled' AND ends_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

type activityHandler func(ctx context.Context, a activityRow) error

func (s *Service) activityHandlers() map[string]activityHandler {
	return map[string]activityHandler{
		ActivityGig:            s.completeGig,
		ActivityRehearsal:      s.completeRehearsal,
		ActivityRecording:      s.completeRecording,
		ActivityWorkShift:      s.completeWorkShift,
		ActivityUniversity:     s.completeUniversity,
		ActivityReading:        s.completeReading,
		ActivitySongwriting:    s.completeSongwriting,
		ActivityHealthRecovery: s.completeHealthRecovery,
		ActivityPRAppearance:   s.completePRAppearance,
		ActivityFilm:           s.completeFilmProduction,
	}
}

// Awards apply as relative updates at the store so overlapping jobs
// touching the same profile add up instead of clobbering each other.
func (s *Service) awardProfile(ctx context.Context, profileID int64, cash, fame, experience, health, energy int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE game.profiles
		SET cash = cash + $2,
		    fame = fame + $3,
		    experience = experience + $4,
		    weekly_experience = weekly_experience + $4,
		    health = LEAST(100, GREATEST(0, health + $5)),
		    energy = LEAST(100, GREATEST(0, energy + $6)),
		    updated_at = now()
		WHERE id = $1
	`, profileID, cash, fame, experience, health, energy)
	return err
}

func (s *Service) completeGig(ctx context.Context, a activityRow) error {
	if a.LinkedID == nil {
		return s.awardProfile(ctx, a.ProfileID, 100, 2, 10, 0, -15)
	}
	var revenue, sold int64
	err := s.db.QueryRow(ctx, `
		UPDATE game.gigs
		SET status = 'played', updated_at = now()
		WHERE id = $1 AND status IN ('booked', 'on_sale')
		RETURNING tickets_sold * ticket_price, tickets_sold
	`, *a.LinkedID).Scan(&revenue, &sold)
	if err != nil {
		return fmt.Errorf("close gig %d: %w", *a.LinkedID, err)
	}
	return s.awardProfile(ctx, a.ProfileID, revenue, sold/50+2, 15, 0, -15)
}

func (s *Service) completeRehearsal(ctx context.Context, a activityRow) error {
	if a.LinkedID != nil {
		if _, err := s.db.Exec(ctx, `
			UPDATE game.bands SET buzz = buzz + 1, updated_at = now() WHERE id = $1
		`, *a.LinkedID); err != nil {
			return err
		}
	}
	return s.awardProfile(ctx, a.ProfileID, 0, 0, 10, 0, -10)
}

func (s *Service) completeRecording(ctx context.Context, a activityRow) error {
	if a.LinkedID != nil {
		if _, err := s.db.Exec(ctx, `
			UPDATE game.songs SET quality = LEAST(100, quality + 5), updated_at = now() WHERE id = $1
		`, *a.LinkedID); err != nil {
			return err
		}
	}
	return s.awardProfile(ctx, a.ProfileID, -50, 1, 12, 0, -10)
}

func (s *Service) completeWorkShift(ctx context.Context, a activityRow) error {
	var wage int64 = 60
	if a.LinkedID != nil {
		// linked_id points at the shift record carrying the wage.
		if err := s.db.QueryRow(ctx, `SELECT wage FROM game.work_shifts WHERE id = $1`, *a.LinkedID).Scan(&wage); err != nil {
			return fmt.Errorf("read shift %d: %w", *a.LinkedID, err)
		}
	}
	return s.awardProfile(ctx, a.ProfileID, wage, 0, 2, 0, -20)
}

func (s *Service) completeUniversity(ctx context.Context, a activityRow) error {
	return s.awardProfile(ctx, a.ProfileID, 0, 0, 15, 0, -5)
}

func (s *Service) completeReading(ctx context.Context, a activityRow) error {
	return s.awardProfile(ctx, a.ProfileID, 0, 0, 5, 1, 0)
}

func (s *Service) completeSongwriting(ctx context.Context, a activityRow) error {
	if a.LinkedID != nil {
		if _, err := s.db.Exec(ctx, `
			UPDATE game.songs SET buzz = LEAST(100, buzz + 2), updated_at = now() WHERE id = $1
		`, *a.LinkedID); err != nil {
			return err
		}
	}
	return s.awardProfile(ctx, a.ProfileID, 0, 0, 8, 0, -5)
}

func (s *Service) completeHealthRecovery(ctx context.Context, a activityRow) error {
	return s.awardProfile(ctx, a.ProfileID, 0, 0, 0, 10, 20)
}

func (s *Service) completePRAppearance(ctx context.Context, a activityRow) error {
	if a.LinkedID != nil {
		if _, err := s.db.Exec(ctx, `
			UPDATE game.bands SET buzz = buzz + 2, updated_at = now() WHERE id = $1
		`, *a.LinkedID); err != nil {
			return err
		}
	}
	return s.awardProfile(ctx, a.ProfileID, 0, 3, 3, 0, -10)
}

func (s *Service) completeFilmProduction(ctx context.Context, a activityRow) error {
	return s.awardProfile(ctx, a.ProfileID, 200, 10, 10, 0, -25)
}
