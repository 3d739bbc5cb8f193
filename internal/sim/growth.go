package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// RunGrowthJob applies the daily passive economy tick to profiles and
// bands. Each entity grows at most once per calendar day; the unique
// (entity, day) rows in the growth tables make reruns free.
func (s *Service) RunGrowthJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "daily_growth", "RunGrowthJob", trig, func(ctx context.Context, res *JobResult) error {
		now := s.now()
		if err := s.growProfiles(ctx, now, res); err != nil {
			return err
		}
		return s.growBands(ctx, now, res)
	})
}

func (s *Service) growProfiles(ctx context.Context, now time.Time, res *JobResult) error {
	rows, err := s.db.Query(ctx, `
		SELECT p.id,
		       (SELECT COUNT(*) FROM game.activities a
		        WHERE a.profile_id = p.id AND a.status = 'completed'
		          AND a.ends_at >= $1 - interval '1 day')
		FROM game.profiles p
		WHERE p.is_active AND NOT p.is_imprisoned
		ORDER BY p.id
	`, now)
	if err != nil {
		return fmt.Errorf("fetch profiles: %w", err)
	}
	type candidate struct {
		id        int64
		completed int
	}
	var profiles []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.completed); err != nil {
			rows.Close()
			return fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range profiles {
		res.Processed++
		fameGain := int64(0)
		if s.cfg.ProfileFameGainMax > 0 {
			fameGain = int64(s.nextIntn(int(s.cfg.ProfileFameGainMax) + 1))
		}
		xpGain := int64(p.completed) * 2
		if err := s.growProfile(ctx, p.id, fameGain, xpGain, now); err != nil {
			s.itemFailed(res, "daily_growth", p.id, err)
			continue
		}
		res.bump("profiles_grown")
	}
	return nil
}

func (s *Service) growProfile(ctx context.Context, profileID, fameGain, xpGain int64, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		INSERT INTO game.daily_growth (profile_id, day, fame_gain, experience_gain, created_at)
		VALUES ($1, $2::date, $3, $4, now())
		ON CONFLICT (profile_id, day) DO NOTHING
	`, profileID, now, fameGain, xpGain)
	if err != nil {
		return fmt.Errorf("growth row: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		// Already grew today.
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.profiles
		SET fame = fame + $2,
		    experience = experience + $3,
		    weekly_experience = weekly_experience + $3,
		    updated_at = now()
		WHERE id = $1
	`, profileID, fameGain, xpGain); err != nil {
		return fmt.Errorf("apply growth: %w", err)
	}
	return tx.Commit(ctx)
}

// growBands rolls band fame and fan gains in their configured ranges,
// with a bonus for recent played gigs, then converts a share of the
// fame gain into extra fans and mirrors a cut onto active members.
// Streaming royalties accrue alongside: fan count and rotation slots
// drive the day's payout.
func (s *Service) growBands(ctx context.Context, now time.Time, res *JobResult) error {
	rows, err := s.db.Query(ctx, `
		SELECT b.id, b.fans,
		       (SELECT COUNT(*) FROM game.gigs g
		        WHERE g.band_id = b.id AND g.status = 'played'
		          AND g.scheduled_at >= $1 - interval '7 days'),
		       (SELECT COUNT(*) FROM game.station_rotation r
		        JOIN game.songs sg ON sg.id = r.song_id
		        WHERE sg.band_id = b.id)
		FROM game.bands b
		WHERE b.is_active
		ORDER BY b.id
	`, now)
	if err != nil {
		return fmt.Errorf("fetch bands: %w", err)
	}
	type candidate struct {
		id            int64
		fans          int64
		recentGigs    int
		rotationSlots int64
	}
	var bands []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.fans, &c.recentGigs, &c.rotationSlots); err != nil {
			rows.Close()
			return fmt.Errorf("scan band: %w", err)
		}
		bands = append(bands, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, b := range bands {
		res.Processed++
		fameGain := s.rollRange(s.cfg.BandFameGainMin, s.cfg.BandFameGainMax) + int64(b.recentGigs)
		fanGain := s.rollRange(s.cfg.BandFanGainMin, s.cfg.BandFanGainMax) +
			int64(float64(fameGain)*s.cfg.FameToFansRate)
		streaming := StreamingRevenue(b.fans, b.rotationSlots, s.cfg.StreamRoyaltyRate)
		if err := s.growBand(ctx, b.id, fameGain, fanGain, streaming, now); err != nil {
			s.itemFailed(res, "daily_growth", b.id, err)
			continue
		}
		res.bump("bands_grown")
		res.Counters["streaming_revenue"] += int(streaming)
	}
	return nil
}

func (s *Service) growBand(ctx context.Context, bandID, fameGain, fanGain, streaming int64, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		INSERT INTO game.band_daily_growth (band_id, day, fame_gain, fan_gain, streaming_revenue, created_at)
		VALUES ($1, $2::date, $3, $4, $5, now())
		ON CONFLICT (band_id, day) DO NOTHING
	`, bandID, now, fameGain, fanGain, streaming)
	if err != nil {
		return fmt.Errorf("band growth row: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.bands
		SET fame = fame + $2,
		    regional_fame = regional_fame + $2,
		    fans = fans + $3,
		    updated_at = now()
		WHERE id = $1
	`, bandID, fameGain, fanGain); err != nil {
		return fmt.Errorf("apply band growth: %w", err)
	}

	memberFame := int64(float64(fameGain) * s.cfg.MemberShare)
	if memberFame > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE game.profiles p
			SET fame = fame + $2, updated_at = now()
			FROM game.band_members m
			WHERE m.band_id = $1 AND m.is_active AND p.id = m.profile_id
		`, bandID, memberFame); err != nil {
			return fmt.Errorf("member fame share: %w", err)
		}
	}
	if streaming > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE game.profiles p
			SET cash = cash + ($2 / m.cnt), updated_at = now()
			FROM (
				SELECT profile_id, COUNT(*) OVER () AS cnt
				FROM game.band_members
				WHERE band_id = $1 AND is_active
			) m
			WHERE p.id = m.profile_id
		`, bandID, streaming); err != nil {
			return fmt.Errorf("streaming payout: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Service) rollRange(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + int64(s.nextIntn(int(hi-lo)+1))
}

// RunTicketSalesJob simulates one day of ticket sales for every
// upcoming gig that is on sale. Sales for a (gig, day) pair are
// recorded once; the tickets_sold increment is capped at capacity in
// the same statement so a race can never oversell the room.
func (s *Service) RunTicketSalesJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "ticket_sales", "RunTicketSalesJob", trig, func(ctx context.Context, res *JobResult) error {
		now := s.now()
		rows, err := s.db.Query(ctx, `
			SELECT g.id, g.capacity, g.tickets_sold, g.ticket_price, g.scheduled_at,
			       b.fame, b.fans
			FROM game.gigs g
			JOIN game.bands b ON b.id = g.band_id
			WHERE g.status = 'on_sale' AND g.scheduled_at > $1
			ORDER BY g.scheduled_at
		`, now)
		if err != nil {
			return fmt.Errorf("fetch gigs: %w", err)
		}
		type gigRow struct {
			id, capacity, sold int64
			price              float64
			scheduledAt        time.Time
			fame, fans         int64
		}
		var gigs []gigRow
		for rows.Next() {
			var g gigRow
			if err := rows.Scan(&g.id, &g.capacity, &g.sold, &g.price, &g.scheduledAt, &g.fame, &g.fans); err != nil {
				rows.Close()
				return fmt.Errorf("scan gig: %w", err)
			}
			gigs = append(gigs, g)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, g := range gigs {
			res.Processed++
			daysUntil := int(g.scheduledAt.Sub(now).Hours() / 24)
			power := DrawPower(g.fame, g.fans, g.capacity, g.price, daysUntil)
			sales := DailyTicketSales(power, g.capacity, g.sold, s.nextFloat(), s.cfg.MaxDailySalesFraction)
			if sales <= 0 {
				continue
			}
			if err := s.recordTicketSales(ctx, g.id, sales, now); err != nil {
				s.itemFailed(res, "ticket_sales", g.id, err)
				continue
			}
			res.Counters["tickets_sold"] += int(sales)
			res.ItemsAffected++
		}
		return nil
	})
}

func (s *Service) recordTicketSales(ctx context.Context, gigID, sales int64, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		INSERT INTO game.gig_ticket_sales (gig_id, sale_day, tickets, created_at)
		VALUES ($1, $2::date, $3, now())
		ON CONFLICT (gig_id, sale_day) DO NOTHING
	`, gigID, now, sales)
	if err != nil {
		return fmt.Errorf("sales row: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		// Today's sales already recorded.
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.gigs
		SET tickets_sold = LEAST(capacity, tickets_sold + $2), updated_at = now()
		WHERE id = $1
	`, gigID, sales); err != nil {
		return fmt.Errorf("apply sales: %w", err)
	}
	return tx.Commit(ctx)
}
