package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"riffcity/internal/notify"
)

type imprisonmentRow struct {
	ID             int64
	ProfileID      int64
	PrisonID       int64
	SentenceDays   int
	ImprisonedAt   time.Time
	ReleaseDate    time.Time
	BehaviorScore  int
	EscapeAttempts int
	Difficulty     int
	PrisonName     string
}

// RunPrisonReleaseJob releases prisoners whose date has passed and, for
// everyone still inside, applies the daily behavior increment and
// recomputes the early-release credit from the new score.
func (s *Service) RunPrisonReleaseJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "prison_release", "RunPrisonReleaseJob", trig, func(ctx context.Context, res *JobResult) error {
		inmates, err := s.activeImprisonments(ctx)
		if err != nil {
			return err
		}

		now := s.now()
		for _, in := range inmates {
			res.Processed++
			if !now.Before(in.ReleaseDate) {
				if err := s.release(ctx, in, "unpaid debts"); err != nil {
					s.itemFailed(res, "prison_release", in.ID, err)
					continue
				}
				res.bump("released")
				continue
			}
			if err := s.applyDailyBehavior(ctx, in, now); err != nil {
				s.itemFailed(res, "prison_release", in.ID, err)
				continue
			}
			res.bump("behavior_updated")
		}
		return nil
	})
}

func (s *Service) activeImprisonments(ctx context.Context) ([]imprisonmentRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.profile_id, i.prison_id, i.sentence_days, i.imprisoned_at,
		       i.release_date, i.behavior_score, i.escape_attempts, pr.difficulty, pr.name
		FROM game.imprisonments i
		JOIN game.prisons pr ON pr.id = i.prison_id
		WHERE i.status = 'imprisoned'
		ORDER BY i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("fetch imprisonments: %w", err)
	}
	defer rows.Close()

	var out []imprisonmentRow
	for rows.Next() {
		var in imprisonmentRow
		if err := rows.Scan(&in.ID, &in.ProfileID, &in.PrisonID, &in.SentenceDays, &in.ImprisonedAt,
			&in.ReleaseDate, &in.BehaviorScore, &in.EscapeAttempts, &in.Difficulty, &in.PrisonName); err != nil {
			return nil, fmt.Errorf("scan imprisonment: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// releaseNotice picks the notification for a prisoner leaving custody.
// An escape is not a served sentence and reads very differently.
func releaseNotice(offense, prisonName, rating string) (kind, title, body string, severity notify.Severity) {
	if offense == "escape" {
		return "escaped", "Escaped",
			fmt.Sprintf("You slipped out of %s. The record will follow you.", prisonName),
			notify.SeverityCritical
	}
	return "released", "Released from prison",
		fmt.Sprintf("You served your sentence at %s. Behavior on record: %s.", prisonName, rating),
		notify.SeverityInfo
}

func (s *Service) release(ctx context.Context, in imprisonmentRow, offense string) error {
	rating := BehaviorRating(in.BehaviorScore)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE game.imprisonments
		SET status = 'released', days_remaining = 0, updated_at = now()
		WHERE id = $1 AND status = 'imprisoned'
	`, in.ID)
	if err != nil {
		return fmt.Errorf("release transition: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.profiles SET is_imprisoned = false, updated_at = now() WHERE id = $1
	`, in.ProfileID); err != nil {
		return fmt.Errorf("clear imprisoned flag: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.criminal_records (profile_id, offense, sentence_days, behavior_rating, recorded_at)
		VALUES ($1, $2, $3, $4, now())
	`, in.ProfileID, offense, in.SentenceDays, rating); err != nil {
		return fmt.Errorf("criminal record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	kind, title, body, severity := releaseNotice(offense, in.PrisonName, rating)
	s.notify.Send(ctx, in.ProfileID, kind, severity, title, body)
	return nil
}

// applyDailyBehavior adds the daily increment (plus a bonus when the
// prisoner finished a songwriting session today) at most once per
// calendar day, then pulls the release date forward per the new score.
func (s *Service) applyDailyBehavior(ctx context.Context, in imprisonmentRow, now time.Time) error {
	gain := s.cfg.DailyBehaviorGain
	var wroteToday bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM game.activities
			WHERE profile_id = $1 AND activity_type = 'songwriting'
			  AND status = 'completed' AND ends_at::date = $2::date
		)
	`, in.ProfileID, now).Scan(&wroteToday)
	if err != nil {
		return fmt.Errorf("creative output check: %w", err)
	}
	if wroteToday {
		gain += s.cfg.CreativeBehaviorBonus
	}

	newScore := clampInt(in.BehaviorScore+gain, 0, BehaviorMax)
	newRelease := AdjustedReleaseDate(in.ImprisonedAt, in.SentenceDays, newScore)
	remaining := int(newRelease.Sub(now).Hours() / 24)
	if remaining < 0 {
		remaining = 0
	}

	// Zero rows affected means today's increment already ran.
	_, err = s.db.Exec(ctx, `
		UPDATE game.imprisonments
		SET behavior_score = $2,
		    release_date = $3,
		    days_remaining = $4,
		    last_behavior_day = $5::date,
		    updated_at = now()
		WHERE id = $1 AND status = 'imprisoned'
		  AND (last_behavior_day IS NULL OR last_behavior_day < $5::date)
	`, in.ID, newScore, newRelease, remaining, now)
	if err != nil {
		return fmt.Errorf("behavior update: %w", err)
	}
	return nil
}

// RunPrisonEventsJob rolls the low-probability daily flavor event and
// the rarer escape opportunity for each active prisoner.
func (s *Service) RunPrisonEventsJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "prison_events", "RunPrisonEventsJob", trig, func(ctx context.Context, res *JobResult) error {
		inmates, err := s.activeImprisonments(ctx)
		if err != nil {
			return err
		}

		for _, in := range inmates {
			res.Processed++
			if s.nextFloat() < s.cfg.PrisonEventProb {
				if err := s.drawPrisonEvent(ctx, in); err != nil {
					s.itemFailed(res, "prison_events", in.ID, err)
					continue
				}
				res.bump("events")
			}
			if in.EscapeAttempts < s.cfg.EscapeMaxAttempts &&
				s.nextFloat() < EscapeProbability(s.cfg.EscapeBaseProb, in.Difficulty) {
				if err := s.attemptEscape(ctx, in); err != nil {
					s.itemFailed(res, "prison_events", in.ID, err)
					continue
				}
				res.bump("escape_attempts")
			}
		}
		return nil
	})
}

// drawPrisonEvent selects one eligible event: behavior score gates
// entry, and non-common events fire at most once per imprisonment.
func (s *Service) drawPrisonEvent(ctx context.Context, in imprisonmentRow) error {
	var eventID int64
	var title string
	var behaviorDelta int
	var cashDelta int64
	err := s.db.QueryRow(ctx, `
		SELECT d.id, d.title, d.behavior_delta, d.cash_delta
		FROM game.prison_event_defs d
		WHERE d.min_behavior <= $2
		  AND (d.rarity = 'common' OR NOT EXISTS (
			SELECT 1 FROM game.prison_event_log l
			WHERE l.imprisonment_id = $1 AND l.event_id = d.id
		  ))
		ORDER BY random()
		LIMIT 1
	`, in.ID, in.BehaviorScore).Scan(&eventID, &title, &behaviorDelta, &cashDelta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("draw event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO game.prison_event_log (imprisonment_id, event_id, occurred_at)
		VALUES ($1, $2, now())
	`, in.ID, eventID); err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.imprisonments
		SET behavior_score = LEAST(100, GREATEST(0, behavior_score + $2)), updated_at = now()
		WHERE id = $1 AND status = 'imprisoned'
	`, in.ID, behaviorDelta); err != nil {
		return fmt.Errorf("apply behavior delta: %w", err)
	}
	if cashDelta != 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE game.profiles SET cash = cash + $2, updated_at = now() WHERE id = $1
		`, in.ProfileID, cashDelta); err != nil {
			return fmt.Errorf("apply cash delta: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notify.Send(ctx, in.ProfileID, "prison_event", notify.SeverityInfo, "Prison life", title)
	return nil
}

func (s *Service) attemptEscape(ctx context.Context, in imprisonmentRow) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE game.imprisonments SET escape_attempts = escape_attempts + 1, updated_at = now()
		WHERE id = $1 AND status = 'imprisoned'
	`, in.ID); err != nil {
		return fmt.Errorf("count attempt: %w", err)
	}

	if s.nextFloat() < s.cfg.EscapeSuccessProb {
		return s.release(ctx, in, "escape")
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE game.imprisonments
		SET behavior_score = GREATEST(0, behavior_score - 15), updated_at = now()
		WHERE id = $1 AND status = 'imprisoned'
	`, in.ID); err != nil {
		return fmt.Errorf("failed attempt penalty: %w", err)
	}
	s.notify.Send(ctx, in.ProfileID, "escape_failed", notify.SeverityWarning,
		"Escape attempt failed", "The guards caught you. Your behavior score took a hit.")
	return nil
}
