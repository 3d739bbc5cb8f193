package sim

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"time"

	"github.com/jackc/pgx/v5"

	"riffcity/internal/notify"
)

// contractTermDays fixes the sponsorship term per slot type.
var contractTermDays = map[string]int{
	"endorsement":      90,
	"tour_sponsorship": 60,
	"tv_spot":          45,
}

func contractTerm(slot string) int {
	if d, ok := contractTermDays[slot]; ok {
		return d
	}
	return 30
}

// RunOfferGenerationJob lets every funded, off-cooldown brand pick up
// to a handful of eligible bands by weighted sampling and extend
// sponsorship offers. Brands are processed independently; a failure for
// one brand never blocks the rest.
func (s *Service) RunOfferGenerationJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "offer_generation", "RunOfferGenerationJob", trig, func(ctx context.Context, res *JobResult) error {
		now := s.now()
		rows, err := s.db.Query(ctx, `
			SELECT id, name, tier, size_index, budget, base_rate, allowed_slots, exclusivity_category
			FROM game.brands
			WHERE active AND budget > 0
			  AND (cooldown_until IS NULL OR cooldown_until <= $1)
			ORDER BY id
		`, now)
		if err != nil {
			return fmt.Errorf("fetch brands: %w", err)
		}
		var brands []brandRow
		for rows.Next() {
			var b brandRow
			if err := rows.Scan(&b.ID, &b.Name, &b.Tier, &b.SizeIndex, &b.Budget, &b.BaseRate, &b.AllowedSlots, &b.ExclusivityCategory); err != nil {
				rows.Close()
				return fmt.Errorf("scan brand: %w", err)
			}
			brands = append(brands, b)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("fetch brands: %w", err)
		}

		for _, b := range brands {
			res.Processed++
			made, err := s.generateBrandOffers(ctx, b, now)
			if err != nil {
				s.itemFailed(res, "offer_generation", b.ID, err)
				continue
			}
			res.Counters["offers_created"] += made
			res.ItemsAffected += made
		}
		return nil
	})
}

func (s *Service) generateBrandOffers(ctx context.Context, b brandRow, now time.Time) (int, error) {
	candidates, err := s.eligibleBands(ctx, b, now)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var picked []offerCandidate
	s.drawWith(func(rng *mathrand.Rand) {
		picked = WeightedSample(rng, candidates, func(c offerCandidate) float64 {
			return 1 + MomentumSignal(c.FameMomentum, c.ChartMomentum, c.AttendanceRate)
		}, s.cfg.OffersPerBrand)
	})

	budget := b.Budget
	made := 0
	for _, c := range picked {
		momentum := MomentumSignal(c.FameMomentum, c.ChartMomentum, c.AttendanceRate)
		slot := s.pickSlot(b.AllowedSlots, momentum)
		payout := OfferPayout(b.BaseRate, c.Fame, b.SizeIndex, s.slotMultiplier(slot), momentum, s.cfg.MomentumBonusCap)
		if payout > budget {
			continue
		}

		spread := s.cfg.OfferExpiryMaxDays - s.cfg.OfferExpiryMinDays
		expiryDays := s.cfg.OfferExpiryMinDays
		if spread > 0 {
			expiryDays += s.nextIntn(spread + 1)
		}
		expiresAt := now.AddDate(0, 0, expiryDays)

		if err := s.persistOffer(ctx, b, c, slot, payout, expiresAt); err != nil {
			return made, fmt.Errorf("persist offer for band %d: %w", c.BandID, err)
		}
		budget -= payout
		made++

		s.notifyBandMembers(ctx, c.BandID, "offer_received", notify.SeverityInfo,
			"Sponsorship offer",
			fmt.Sprintf("%s offers %s a %s deal worth %d. It expires in %d days.", b.Name, c.Name, slot, payout, expiryDays))
	}

	if made > 0 {
		if _, err := s.db.Exec(ctx, `
			UPDATE game.brands SET cooldown_until = $2, updated_at = now() WHERE id = $1
		`, b.ID, now.Add(s.cfg.OfferCooldown)); err != nil {
			return made, fmt.Errorf("set cooldown: %w", err)
		}
	}
	return made, nil
}

// eligibleBands filters by fame threshold, sponsorship flag, per-brand
// offer cooldown and exclusivity conflicts, then loads the momentum
// signals the sampler weighs: fame gained over the past week, recent
// gig attendance, and chart movement.
func (s *Service) eligibleBands(ctx context.Context, b brandRow, now time.Time) ([]offerCandidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT bd.id, bd.name, bd.fame, bd.chart_momentum,
		       COALESCE((
		           SELECT SUM(g.fame_gain) FROM game.band_daily_growth g
		           WHERE g.band_id = bd.id AND g.day >= ($2::date - 7)
		       ), 0) AS recent_fame,
		       COALESCE((
		           SELECT AVG(gi.tickets_sold::float / NULLIF(gi.capacity, 0))
		           FROM game.gigs gi
		           WHERE gi.band_id = bd.id AND gi.status = 'played'
		             AND gi.scheduled_at >= $2 - interval '30 days'
		       ), 0) AS attendance
		FROM game.bands bd
		WHERE bd.fame >= $3
		  AND bd.eligible_for_sponsorship
		  AND NOT EXISTS (
			SELECT 1 FROM game.offers o
			WHERE o.band_id = bd.id AND o.brand_id = $1
			  AND (o.status = 'pending' OR o.created_at > $2 - $4::interval)
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM game.contracts ct
			WHERE ct.band_id = bd.id AND ct.status = 'active'
			  AND (ct.exclusivity_category = $5 OR ct.brand_id = $1)
		  )
		ORDER BY bd.id
	`, b.ID, now, s.cfg.OfferMinFame, s.cfg.OfferCooldown, b.ExclusivityCategory)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	defer rows.Close()

	var out []offerCandidate
	for rows.Next() {
		var c offerCandidate
		var chartMomentum int
		var recentFame float64
		if err := rows.Scan(&c.BandID, &c.Name, &c.Fame, &chartMomentum, &recentFame, &c.AttendanceRate); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.ChartMomentum = float64(chartMomentum) / 100.0
		if c.Fame > 0 {
			c.FameMomentum = recentFame / float64(c.Fame)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// slotMultiplier reads the configured payout scale for a placement
// type. Unknown slots fall back to 1.0.
func (s *Service) slotMultiplier(slot string) float64 {
	if m, ok := s.cfg.SlotMultipliers[slot]; ok {
		return m
	}
	return 1.0
}

// pickSlot chooses from the brand's allowed set: high-momentum bands
// get the most valuable placement, everyone else the first allowed.
func (s *Service) pickSlot(allowed []string, momentum float64) string {
	if len(allowed) == 0 {
		return "social_post"
	}
	if momentum > 0.5 {
		best := allowed[0]
		for _, slot := range allowed[1:] {
			if s.slotMultiplier(slot) > s.slotMultiplier(best) {
				best = slot
			}
		}
		return best
	}
	return allowed[0]
}

func (s *Service) persistOffer(ctx context.Context, b brandRow, c offerCandidate, slot string, payout int64, expiresAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO game.offers
		    (band_id, brand_id, slot, payout, expires_at, exclusivity_category, status, expiry_notified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', false, now())
	`, c.BandID, b.ID, slot, payout, expiresAt, b.ExclusivityCategory); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `
		UPDATE game.brands SET budget = budget - $2, updated_at = now()
		WHERE id = $1 AND budget >= $2
	`, b.ID, payout)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("brand %d budget exhausted", b.ID)
	}
	return tx.Commit(ctx)
}

// RunOfferExpiryJob is the maintenance sweep over offers and contracts:
// warn once about offers expiring soon, expire overdue offers, accrue
// daily contract payments, and close out contracts past their end date.
func (s *Service) RunOfferExpiryJob(ctx context.Context, trig Trigger) (JobResult, error) {
	return s.runJob(ctx, "offer_expiry", "RunOfferExpiryJob", trig, func(ctx context.Context, res *JobResult) error {
		now := s.now()

		notified, err := s.notifyExpiringOffers(ctx, now)
		if err != nil {
			return err
		}
		res.Counters["expiry_notices"] = notified
		res.ItemsAffected += notified

		cmd, err := s.db.Exec(ctx, `
			UPDATE game.offers SET status = 'expired', updated_at = now()
			WHERE status = 'pending' AND expires_at <= $1
		`, now)
		if err != nil {
			return fmt.Errorf("expire offers: %w", err)
		}
		res.Counters["offers_expired"] = int(cmd.RowsAffected())
		res.ItemsAffected += int(cmd.RowsAffected())

		if err := s.accrueContractPayments(ctx, now, res); err != nil {
			return err
		}
		return s.expireContracts(ctx, now, res)
	})
}

// notifyExpiringOffers flags each pending offer inside the notice
// window exactly once; the sent flag is flipped in the same statement
// that selects the rows, so a rerun stays quiet.
func (s *Service) notifyExpiringOffers(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE game.offers o
		SET expiry_notified = true, updated_at = now()
		FROM game.brands b
		WHERE o.brand_id = b.id
		  AND o.status = 'pending' AND NOT o.expiry_notified
		  AND o.expires_at > $1 AND o.expires_at <= $2
		RETURNING o.band_id, o.slot, b.name, o.expires_at
	`, now, now.Add(s.cfg.ExpiryNoticeWindow))
	if err != nil {
		return 0, fmt.Errorf("expiry notices: %w", err)
	}
	type notice struct {
		bandID    int64
		slot      string
		brand     string
		expiresAt time.Time
	}
	var notices []notice
	for rows.Next() {
		var n notice
		if err := rows.Scan(&n.bandID, &n.slot, &n.brand, &n.expiresAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan notice: %w", err)
		}
		notices = append(notices, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, n := range notices {
		s.notifyBandMembers(ctx, n.bandID, "offer_expiring", notify.SeverityWarning,
			"Offer expiring soon",
			fmt.Sprintf("The %s offer from %s expires %s.", n.slot, n.brand, n.expiresAt.Format("Jan 2 15:04")))
	}
	return len(notices), nil
}

// accrueContractPayments pays each active contract its daily share of
// the payout, split across active members. The unique (contract_id,
// paid_on) constraint makes the accrual idempotent per day.
func (s *Service) accrueContractPayments(ctx context.Context, now time.Time, res *JobResult) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, band_id, slot, payout
		FROM game.contracts
		WHERE status = 'active' AND starts_at <= $1 AND ends_at > $1
		ORDER BY id
	`, now)
	if err != nil {
		return fmt.Errorf("fetch active contracts: %w", err)
	}
	type active struct {
		id     int64
		bandID int64
		slot   string
		payout int64
	}
	var contracts []active
	for rows.Next() {
		var c active
		if err := rows.Scan(&c.id, &c.bandID, &c.slot, &c.payout); err != nil {
			rows.Close()
			return fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range contracts {
		res.Processed++
		daily := c.payout / int64(contractTerm(c.slot))
		if daily <= 0 {
			continue
		}
		if err := s.payContractDay(ctx, c.id, c.bandID, daily, now); err != nil {
			s.itemFailed(res, "offer_expiry", c.id, err)
			continue
		}
		res.Counters["payments"]++
	}
	return nil
}

func (s *Service) payContractDay(ctx context.Context, contractID, bandID, amount int64, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		INSERT INTO game.contract_payments (contract_id, amount, reason, paid_on, paid_at)
		VALUES ($1, $2, 'daily_accrual', $3::date, now())
		ON CONFLICT (contract_id, paid_on) DO NOTHING
	`, contractID, amount, now)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// Already paid today.
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.profiles p
		SET cash = cash + ($2 / m.cnt), updated_at = now()
		FROM (
			SELECT profile_id, COUNT(*) OVER () AS cnt
			FROM game.band_members
			WHERE band_id = $1 AND is_active
		) m
		WHERE p.id = m.profile_id
	`, bandID, amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) expireContracts(ctx context.Context, now time.Time, res *JobResult) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, band_id FROM game.contracts
		WHERE status = 'active' AND ends_at <= $1
		ORDER BY id
	`, now)
	if err != nil {
		return fmt.Errorf("fetch expiring contracts: %w", err)
	}
	type expiring struct{ id, bandID int64 }
	var due []expiring
	for rows.Next() {
		var e expiring
		if err := rows.Scan(&e.id, &e.bandID); err != nil {
			rows.Close()
			return fmt.Errorf("scan expiring contract: %w", err)
		}
		due = append(due, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range due {
		res.Processed++
		if err := s.expireContract(ctx, e.id, now); err != nil {
			s.itemFailed(res, "offer_expiry", e.id, err)
			continue
		}
		res.bump("contracts_expired")
	}
	return nil
}

func (s *Service) expireContract(ctx context.Context, contractID int64, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		UPDATE game.contracts SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, contractID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.contract_history (contract_id, event, detail, recorded_at)
		VALUES ($1, 'expired', 'contract term ended', now())
	`, contractID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.contract_payments (contract_id, amount, reason, paid_on, paid_at)
		VALUES ($1, 0, 'expiry_closeout', $2::date, now())
		ON CONFLICT (contract_id, paid_on) DO NOTHING
	`, contractID, now); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AcceptOffer is the synchronous acceptance operation invoked from the
// API, not the periodic sweep. It validates the offer is pending and
// unexpired, that the caller belongs to the band, and that no active
// contract occupies the slot or exclusivity category, then creates the
// contract and marks the offer accepted atomically.
func (s *Service) AcceptOffer(ctx context.Context, in AcceptOfferInput) (AcceptOfferResult, error) {
	var out AcceptOfferResult
	if in.OfferID <= 0 || in.ProfileID <= 0 {
		return out, fmt.Errorf("%w: offer id and profile id are required", ErrInvalidInput)
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	var bandID, brandID, payout int64
	var slot, category, status string
	var expiresAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT band_id, brand_id, slot, payout, expires_at, exclusivity_category, status
		FROM game.offers
		WHERE id = $1
		FOR UPDATE
	`, in.OfferID).Scan(&bandID, &brandID, &slot, &payout, &expiresAt, &category, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrOfferNotFound
	}
	if err != nil {
		return out, fmt.Errorf("load offer: %w", err)
	}

	var isMember bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM game.band_members
			WHERE band_id = $1 AND profile_id = $2 AND is_active
		)
	`, bandID, in.ProfileID).Scan(&isMember); err != nil {
		return out, fmt.Errorf("membership check: %w", err)
	}
	if !isMember {
		return out, ErrUnauthorized
	}
	if status != "pending" {
		return out, fmt.Errorf("%w (status %s)", ErrOfferNotPending, status)
	}
	if !expiresAt.After(now) {
		return out, ErrOfferExpired
	}

	// A band never holds two active contracts with the same brand or in
	// the same exclusivity category.
	var conflictKind string
	err = tx.QueryRow(ctx, `
		SELECT CASE WHEN brand_id = $3 THEN 'brand' ELSE 'exclusivity' END
		FROM game.contracts
		WHERE band_id = $1 AND status = 'active'
		  AND (exclusivity_category = $2 OR brand_id = $3)
		LIMIT 1
	`, bandID, category, brandID).Scan(&conflictKind)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("conflict check: %w", err)
	}
	if err == nil {
		if conflictKind == "brand" {
			return out, ErrBrandConflict
		}
		return out, ErrExclusivityConflict
	}

	startsAt := now
	endsAt := now.AddDate(0, 0, contractTerm(slot))
	err = tx.QueryRow(ctx, `
		INSERT INTO game.contracts
		    (offer_id, band_id, brand_id, slot, exclusivity_category, payout, starts_at, ends_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active', now())
		RETURNING id
	`, in.OfferID, bandID, brandID, slot, category, payout, startsAt, endsAt).Scan(&out.ContractID)
	if err != nil {
		return out, fmt.Errorf("create contract: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game.offers SET status = 'accepted', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, in.OfferID); err != nil {
		return out, fmt.Errorf("mark accepted: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.contract_history (contract_id, event, detail, recorded_at)
		VALUES ($1, 'signed', 'offer accepted', now())
	`, out.ContractID); err != nil {
		return out, fmt.Errorf("contract history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return out, err
	}

	out.OfferID = in.OfferID
	out.Payout = payout
	out.StartsAt = startsAt
	out.EndsAt = endsAt
	return out, nil
}

func (s *Service) notifyBandMembers(ctx context.Context, bandID int64, kind string, severity notify.Severity, title, body string) {
	rows, err := s.db.Query(ctx, `
		SELECT profile_id FROM game.band_members WHERE band_id = $1 AND is_active
	`, bandID)
	if err != nil {
		s.log.Error("band member lookup failed", "band_id", bandID, "err", err)
		return
	}
	var members []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.log.Error("band member scan failed", "band_id", bandID, "err", err)
			return
		}
		members = append(members, id)
	}
	rows.Close()
	for _, id := range members {
		s.notify.Send(ctx, id, kind, severity, title, body)
	}
}
