package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"riffcity/internal/notify"
)

// RunRadioReviewJob reviews radio submissions that have sat pending for
// at least the configured review delay. Each submission is resolved
// exactly once: hard gates reject outright, everything else rides a
// single acceptance roll. Accepted songs enter the station's rotation.
func (s *Service) RunRadioReviewJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "radio_review", "RunRadioReviewJob", trig, func(ctx context.Context, res *JobResult) error {
		now := s.now()
		due, err := s.pendingSubmissions(ctx, now)
		if err != nil {
			return err
		}

		for _, sub := range due {
			res.Processed++
			if err := s.reviewSubmission(ctx, sub, now); err != nil {
				s.itemFailed(res, "radio_review", sub.ID, err)
				continue
			}
			res.bump("reviewed")
		}
		return nil
	})
}

// pendingSubmissions joins song, band and station so the review has
// everything in hand. A submission whose song, band or station row has
// gone missing surfaces with a zero SongID and gets rejected instead of
// erroring the batch.
func (s *Service) pendingSubmissions(ctx context.Context, now time.Time) ([]submissionRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT sub.id,
		       COALESCE(sg.id, 0), COALESCE(sg.title, ''), COALESCE(sg.quality, 0), COALESCE(sg.buzz, 0),
		       COALESCE(st.id, 0), COALESCE(st.region, ''), COALESCE(st.quality_bar, 0),
		       COALESCE(st.genres, '{}'), COALESCE(st.min_regional_fame, 0),
		       COALESCE(bd.id, 0), COALESCE(bd.genre, ''), COALESCE(bd.regional_fame, 0)
		FROM game.radio_submissions sub
		LEFT JOIN game.songs sg ON sg.id = sub.song_id
		LEFT JOIN game.radio_stations st ON st.id = sub.station_id
		LEFT JOIN game.bands bd ON bd.id = sg.band_id
		WHERE sub.status = 'pending' AND sub.submitted_at <= $1
		ORDER BY sub.submitted_at
	`, now.Add(-s.cfg.ReviewDelay))
	if err != nil {
		return nil, fmt.Errorf("fetch submissions: %w", err)
	}
	defer rows.Close()

	var out []submissionRow
	for rows.Next() {
		var sub submissionRow
		if err := rows.Scan(&sub.ID,
			&sub.SongID, &sub.SongTitle, &sub.SongQuality, &sub.SongBuzz,
			&sub.StationID, &sub.StationRegion, &sub.StationQuality,
			&sub.StationGenres, &sub.MinRegionalFame,
			&sub.BandID, &sub.BandGenre, &sub.BandRegionFame); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Service) reviewSubmission(ctx context.Context, sub submissionRow, now time.Time) error {
	if sub.SongID == 0 || sub.StationID == 0 || sub.BandID == 0 {
		return s.resolveSubmission(ctx, sub, now, false, "song, band or station no longer exists")
	}
	if sub.BandRegionFame < sub.MinRegionalFame {
		return s.resolveSubmission(ctx, sub, now, false,
			fmt.Sprintf("regional fame %d below the station's bar of %d", sub.BandRegionFame, sub.MinRegionalFame))
	}

	prob := AcceptanceProbability(
		s.cfg.RadioBaseAcceptPct,
		sub.SongQuality >= sub.StationQuality,
		containsGenre(sub.StationGenres, sub.BandGenre),
		sub.SongBuzz >= s.cfg.RadioBuzzBar,
		sub.BandRegionFame >= 2*sub.MinRegionalFame,
	)
	if s.nextFloat() < prob {
		return s.resolveSubmission(ctx, sub, now, true, "")
	}
	return s.resolveSubmission(ctx, sub, now, false, "the station passed on this one")
}

// resolveSubmission flips the submission out of pending exactly once;
// the status guard makes a concurrent second review a no-op. On accept
// the song joins the station rotation, idempotently.
func (s *Service) resolveSubmission(ctx context.Context, sub submissionRow, now time.Time, accepted bool, reason string) error {
	status := "rejected"
	if accepted {
		status = "accepted"
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE game.radio_submissions
		SET status = $2, review_reason = $3, reviewed_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, sub.ID, status, reason, now)
	if err != nil {
		return fmt.Errorf("resolve submission: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return nil
	}

	if accepted {
		if _, err := tx.Exec(ctx, `
			INSERT INTO game.station_rotation (station_id, song_id, added_at)
			VALUES ($1, $2, now())
			ON CONFLICT (station_id, song_id) DO NOTHING
		`, sub.StationID, sub.SongID); err != nil {
			return fmt.Errorf("rotation insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if accepted {
		s.notifyBandMembers(ctx, sub.BandID, "radio_accepted", notify.SeverityInfo,
			"On the air",
			fmt.Sprintf("%q was picked up for rotation in %s.", sub.SongTitle, sub.StationRegion))
	} else if sub.BandID != 0 {
		s.notifyBandMembers(ctx, sub.BandID, "radio_rejected", notify.SeverityInfo,
			"Submission rejected",
			fmt.Sprintf("%q was not picked up: %s.", sub.SongTitle, reason))
	}
	return nil
}

// containsGenre matches case-insensitively: station playlists and band
// profiles do not agree on capitalization.
func containsGenre(genres []string, genre string) bool {
	for _, g := range genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}
