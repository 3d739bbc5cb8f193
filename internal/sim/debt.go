package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"riffcity/internal/notify"
)

// RunDebtJob walks every profile with negative cash that is not already
// imprisoned and advances its debt episode: start the clock on day 0,
// warn as the enforcement day approaches, and on the configured
// enforcement day either divert a qualifying first offender to
// community service or imprison. Per-profile failures are counted and
// skipped.
func (s *Service) RunDebtJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "debt_enforcement", "RunDebtJob", trig, func(ctx context.Context, res *JobResult) error {
		rows, err := s.db.Query(ctx, `
			SELECT id, display_name, cash, city, total_imprisonments, debt_start_at
			FROM game.profiles
			WHERE cash < 0 AND NOT is_imprisoned
			ORDER BY id
		`)
		if err != nil {
			return fmt.Errorf("fetch debtors: %w", err)
		}
		var debtors []debtorRow
		for rows.Next() {
			var d debtorRow
			if err := rows.Scan(&d.ID, &d.DisplayName, &d.Cash, &d.City, &d.TotalImprisonments, &d.DebtStartAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan debtor: %w", err)
			}
			debtors = append(debtors, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("fetch debtors: %w", err)
		}

		now := s.now()
		for _, d := range debtors {
			res.Processed++
			if err := s.processDebtor(ctx, d, now, res); err != nil {
				s.itemFailed(res, "debt_enforcement", d.ID, err)
			}
		}
		return nil
	})
}

func (s *Service) processDebtor(ctx context.Context, d debtorRow, now time.Time, res *JobResult) error {
	if d.DebtStartAt == nil {
		if _, err := s.db.Exec(ctx, `
			UPDATE game.profiles SET debt_start_at = $2, updated_at = now()
			WHERE id = $1 AND debt_start_at IS NULL
		`, d.ID, now); err != nil {
			return fmt.Errorf("start debt clock: %w", err)
		}
		s.notifyOncePerDay(ctx, d.ID, "debt_warning_first", notify.SeverityWarning,
			"Debt warning", "Your balance is negative. Settle your debts or face consequences.")
		res.bump("clocks_started")
		return nil
	}

	days := DaysInDebt(now, *d.DebtStartAt)
	switch debtStage(days, s.cfg.DebtImprisonDays) {
	case "none":
		return nil
	case "warning":
		s.notifyOncePerDay(ctx, d.ID, "debt_warning_approaching", notify.SeverityWarning,
			"Debt warning",
			fmt.Sprintf("%d days in debt. %d days left before enforcement.", days, s.cfg.DebtImprisonDays-days))
		res.bump("warnings")
		return nil
	case "final_warning":
		s.notifyOncePerDay(ctx, d.ID, "debt_warning_final", notify.SeverityCritical,
			"Final debt warning", "Enforcement begins tomorrow. Settle your debts now.")
		res.bump("warnings")
		return nil
	}

	// Enforcement day or later. A debt episode produces exactly one of
	// {diversion, imprisonment}: an active assignment means the
	// community-service job owns this debtor from here.
	var diverted bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM game.community_service
			WHERE profile_id = $1 AND status = 'active'
		)
	`, d.ID).Scan(&diverted); err != nil {
		return fmt.Errorf("check diversion: %w", err)
	}
	if diverted {
		return nil
	}

	debt := -d.Cash
	if d.TotalImprisonments == 0 && debt < s.cfg.DiversionCeiling {
		if err := s.offerDiversion(ctx, d, now); err != nil {
			return err
		}
		res.bump("diversions")
		return nil
	}

	sentence := SentenceDays(debt, d.TotalImprisonments,
		s.cfg.SentenceBaseCapDays, s.cfg.SentenceFinalCapDays,
		s.cfg.RecidivismFactor, s.cfg.RecidivismMaxMult)
	if err := s.imprison(ctx, d.ID, d.City, sentence, BehaviorStart, "unpaid debts", now); err != nil {
		return err
	}
	res.bump("imprisonments")
	return nil
}

// debtStage maps days in debt to the escalation step relative to the
// configured enforcement day: a warning two days out, a final warning
// one day out, enforcement on the day itself and after.
func debtStage(days, enforceDay int) string {
	switch {
	case days >= enforceDay:
		return "enforce"
	case days == enforceDay-1:
		return "final_warning"
	case days == enforceDay-2:
		return "warning"
	default:
		return "none"
	}
}

func (s *Service) offerDiversion(ctx context.Context, d debtorRow, now time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO game.community_service (profile_id, required_sessions, completed_sessions, deadline, status, created_at)
		VALUES ($1, $2, 0, $3, 'active', now())
	`, d.ID, s.cfg.DiversionSessions, now.Add(s.cfg.DiversionDeadline))
	if err != nil {
		return fmt.Errorf("create diversion: %w", err)
	}
	s.notify.Send(ctx, d.ID, "community_service_offered", notify.SeverityWarning,
		"Community service assigned",
		fmt.Sprintf("Complete %d busking sessions within a week to clear your record.", s.cfg.DiversionSessions))
	return nil
}

// imprison performs the full multi-field transition in one short
// transaction: create the imprisonment, zero the cash, clear the debt
// clock, flip the flag, bump the counter.
func (s *Service) imprison(ctx context.Context, profileID int64, city string, sentenceDays, behaviorStart int, offense string, now time.Time) error {
	prisonID, prisonName, err := s.pickPrison(ctx, city)
	if err != nil {
		return fmt.Errorf("pick prison: %w", err)
	}
	mate := cellmates[s.nextIntn(len(cellmates))]
	releaseDate := now.AddDate(0, 0, sentenceDays)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var imprisoned bool
	if err := tx.QueryRow(ctx, `
		SELECT is_imprisoned FROM game.profiles WHERE id = $1 FOR UPDATE
	`, profileID).Scan(&imprisoned); err != nil {
		return fmt.Errorf("lock profile: %w", err)
	}
	if imprisoned {
		// Another invocation got here first; this transition already
		// happened.
		return nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO game.imprisonments
		    (profile_id, prison_id, sentence_days, days_remaining, imprisoned_at, release_date,
		     behavior_score, cellmate_name, cellmate_skill, cellmate_bonus, escape_attempts, status)
		VALUES ($1, $2, $3, $3, $4, $5, $6, $7, $8, $9, 0, 'imprisoned')
	`, profileID, prisonID, sentenceDays, now, releaseDate, behaviorStart, mate.Name, mate.Skill, mate.Bonus); err != nil {
		return fmt.Errorf("create imprisonment: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.profiles
		SET cash = 0,
		    debt_start_at = NULL,
		    is_imprisoned = true,
		    total_imprisonments = total_imprisonments + 1,
		    updated_at = now()
		WHERE id = $1
	`, profileID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notify.Send(ctx, profileID, "imprisoned", notify.SeverityCritical,
		"Imprisoned",
		fmt.Sprintf("Sentenced to %d days in %s for %s. Your cellmate is %s (%s).",
			sentenceDays, prisonName, offense, mate.Name, mate.Skill))
	return nil
}

// pickPrison prefers a prison in the profile's city, falling back to
// any prison.
func (s *Service) pickPrison(ctx context.Context, city string) (int64, string, error) {
	var id int64
	var name string
	err := s.db.QueryRow(ctx, `
		SELECT id, name
		FROM game.prisons
		ORDER BY (city = $1) DESC, id
		LIMIT 1
	`, city).Scan(&id, &name)
	if err != nil {
		return 0, "", err
	}
	return id, name, nil
}

// RunCommunityServiceJob evaluates active assignments daily: enough
// completed sessions clears the debt with no criminal record, a passed
// deadline with incomplete sessions converts to a harsher imprisonment.
func (s *Service) RunCommunityServiceJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "community_service", "RunCommunityServiceJob", trig, func(ctx context.Context, res *JobResult) error {
		rows, err := s.db.Query(ctx, `
			SELECT cs.id, cs.profile_id, cs.required_sessions, cs.completed_sessions, cs.deadline,
			       p.cash, p.city, p.total_imprisonments
			FROM game.community_service cs
			JOIN game.profiles p ON p.id = cs.profile_id
			WHERE cs.status = 'active'
			ORDER BY cs.id
		`)
		if err != nil {
			return fmt.Errorf("fetch assignments: %w", err)
		}
		type assignment struct {
			ID        int64
			ProfileID int64
			Required  int
			Completed int
			Deadline  time.Time
			Cash      int64
			City      string
			Priors    int
		}
		var due []assignment
		for rows.Next() {
			var a assignment
			if err := rows.Scan(&a.ID, &a.ProfileID, &a.Required, &a.Completed, &a.Deadline, &a.Cash, &a.City, &a.Priors); err != nil {
				rows.Close()
				return fmt.Errorf("scan assignment: %w", err)
			}
			due = append(due, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("fetch assignments: %w", err)
		}

		now := s.now()
		for _, a := range due {
			res.Processed++
			switch {
			case a.Completed >= a.Required:
				if err := s.completeDiversion(ctx, a.ID, a.ProfileID); err != nil {
					s.itemFailed(res, "community_service", a.ID, err)
					continue
				}
				res.bump("completed")

			case now.After(a.Deadline):
				debt := -a.Cash
				if debt < 0 {
					debt = 0
				}
				base := SentenceDays(debt, a.Priors,
					s.cfg.SentenceBaseCapDays, s.cfg.SentenceFinalCapDays,
					s.cfg.RecidivismFactor, s.cfg.RecidivismMaxMult)
				harsher := int(math.Ceil(float64(base) * diversionFailureMult))
				if harsher > s.cfg.SentenceFinalCapDays {
					harsher = s.cfg.SentenceFinalCapDays
				}
				if err := s.failDiversion(ctx, a.ID, a.ProfileID, a.City, harsher, now); err != nil {
					s.itemFailed(res, "community_service", a.ID, err)
					continue
				}
				res.bump("failed")
			}
		}
		return nil
	})
}

func (s *Service) completeDiversion(ctx context.Context, assignmentID, profileID int64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE game.community_service SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, assignmentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.profiles
		SET cash = GREATEST(cash, 0), debt_start_at = NULL, updated_at = now()
		WHERE id = $1
	`, profileID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notify.Send(ctx, profileID, "community_service_completed", notify.SeverityInfo,
		"Debt cleared", "Community service complete. Your debt is forgiven and your record stays clean.")
	return nil
}

func (s *Service) failDiversion(ctx context.Context, assignmentID, profileID int64, city string, sentenceDays int, now time.Time) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE game.community_service SET status = 'failed', updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, assignmentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return nil
	}
	return s.imprison(ctx, profileID, city, sentenceDays, BehaviorStartDiversion, "failing community service", now)
}

// notifyOncePerDay suppresses repeats of the same notification kind for
// the same profile within one calendar day, so re-running a sweep is
// quiet for already-warned debtors.
func (s *Service) notifyOncePerDay(ctx context.Context, profileID int64, kind string, severity notify.Severity, title, body string) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM game.notifications
			WHERE profile_id = $1 AND kind = $2 AND created_at::date = CURRENT_DATE
		)
	`, profileID, kind).Scan(&exists)
	if err != nil {
		s.log.Error("notification dedup check failed", "profile_id", profileID, "kind", kind, "err", err)
		return
	}
	if exists {
		return
	}
	s.notify.Send(ctx, profileID, kind, severity, title, body)
}
