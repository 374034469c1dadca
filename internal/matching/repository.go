package matching

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrMemberNotFound    = errors.New("member not found")
	ErrProfileIncomplete = errors.New("member profile incomplete or not approved")
)

type Repository interface {
	// Read side: member data owned by external collaborators
	GetSeekerContext(ctx context.Context, memberID int64) (*SeekerContext, error)
	ListEligibleMembers(ctx context.Context, afterID int64, limit, completionThreshold int) ([]*Member, error)
	ListCandidates(ctx context.Context, seekerID int64, poolSize int) ([]*CandidateContext, error)
	ListBlockedMemberIDs(ctx context.Context, memberID int64) (map[int64]bool, error)
	IsBlocked(ctx context.Context, a, b int64) (bool, error)

	// Write side: match records and the one member field this core owns
	UpsertPendingMatch(ctx context.Context, rec *MatchRecord) (bool, error)
	GetMatchRecord(ctx context.Context, initiatorID, candidateID int64) (*MatchRecord, error)
	RecordAction(ctx context.Context, actorID, targetID int64, action MatchAction) (*ActionResult, error)
	ExpireStaleMatches(ctx context.Context) (int64, error)
	SetLastMatchesGeneratedAt(ctx context.Context, memberID int64) error
}

// ActionResult reports what a recorded action changed
type ActionResult struct {
	Record       *MatchRecord
	NewlyMutual  bool
	AlreadyFinal bool // action hit a blocked pair and was ignored
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

const memberColumns = `
	m.id, m.full_name, m.gender, m.birth_date, m.email, m.timezone,
	m.account_status, m.profile_approval, m.profile_completion,
	m.premium_active, m.verified, m.last_active_at, m.last_matches_generated_at
`

func (r *postgresRepository) GetSeekerContext(ctx context.Context, memberID int64) (*SeekerContext, error) {
	var member Member
	query := `SELECT ` + memberColumns + ` FROM members m WHERE m.id = $1`
	if err := r.db.GetContext(ctx, &member, query, memberID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member %d: %w", memberID, err)
	}

	var profile Profile
	if err := r.db.GetContext(ctx, &profile,
		`SELECT member_id, height_cm, education_level, occupation, religion,
		        city, country, smoking, drinking, diet
		 FROM profiles WHERE member_id = $1`, memberID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProfileIncomplete
		}
		return nil, fmt.Errorf("get profile %d: %w", memberID, err)
	}

	var pref Preference
	if err := r.db.GetContext(ctx, &pref,
		`SELECT member_id, min_age, max_age, religions, education_levels,
		        cities, countries, smoking, drinking, diet, deal_breakers
		 FROM preferences WHERE member_id = $1`, memberID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProfileIncomplete
		}
		return nil, fmt.Errorf("get preference %d: %w", memberID, err)
	}

	horoscope, err := r.getHoroscope(ctx, memberID)
	if err != nil {
		return nil, err
	}

	interests, err := r.getInterests(ctx, memberID)
	if err != nil {
		return nil, err
	}

	return &SeekerContext{
		Member:     &member,
		Profile:    &profile,
		Preference: &pref,
		Horoscope:  horoscope,
		Interests:  interests,
	}, nil
}

func (r *postgresRepository) getHoroscope(ctx context.Context, memberID int64) (*Horoscope, error) {
	var h Horoscope
	err := r.db.GetContext(ctx, &h,
		`SELECT member_id, moon_sign, nakshatra, zodiac FROM horoscopes WHERE member_id = $1`,
		memberID)
	if err == sql.ErrNoRows {
		return nil, nil // optional data, absence is neutral
	}
	if err != nil {
		return nil, fmt.Errorf("get horoscope %d: %w", memberID, err)
	}
	return &h, nil
}

func (r *postgresRepository) getInterests(ctx context.Context, memberID int64) ([]string, error) {
	var tags []string
	err := r.db.SelectContext(ctx, &tags,
		`SELECT tag FROM member_interests WHERE member_id = $1 ORDER BY tag`, memberID)
	if err != nil {
		return nil, fmt.Errorf("get interests %d: %w", memberID, err)
	}
	return tags, nil
}

// ListEligibleMembers streams eligibility-filtered members in keyset
// chunks so the all-users pass never loads the full member base.
func (r *postgresRepository) ListEligibleMembers(ctx context.Context, afterID int64, limit, completionThreshold int) ([]*Member, error) {
	var members []*Member
	query := `
		SELECT ` + memberColumns + `
		FROM members m
		WHERE m.id > $1
		  AND m.account_status = $2
		  AND m.profile_approval = $3
		  AND m.profile_completion >= $4
		ORDER BY m.id
		LIMIT $5
	`
	err := r.db.SelectContext(ctx, &members, query,
		afterID, AccountActive, ApprovalApproved, completionThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("list eligible members: %w", err)
	}
	return members, nil
}

// ListCandidates returns the scoring pool for a seeker: active,
// approved members other than the seeker, excluding pairs blocked in
// either direction and pairs the seeker's record has already moved
// past pending (liked, disliked, mutual, expired).
func (r *postgresRepository) ListCandidates(ctx context.Context, seekerID int64, poolSize int) ([]*CandidateContext, error) {
	query := `
		SELECT ` + memberColumns + `,
		       p.member_id "profile.member_id", p.height_cm "profile.height_cm",
		       p.education_level "profile.education_level", p.occupation "profile.occupation",
		       p.religion "profile.religion", p.city "profile.city", p.country "profile.country",
		       p.smoking "profile.smoking", p.drinking "profile.drinking", p.diet "profile.diet"
		FROM members m
		JOIN profiles p ON p.member_id = m.id
		WHERE m.id != $1
		  AND m.account_status = $2
		  AND m.profile_approval = $3
		  AND NOT EXISTS (
		      SELECT 1 FROM match_records b
		      WHERE b.status = 'blocked'
		        AND ((b.initiator_id = $1 AND b.candidate_id = m.id)
		          OR (b.initiator_id = m.id AND b.candidate_id = $1))
		  )
		  AND NOT EXISTS (
		      SELECT 1 FROM match_records a
		      WHERE a.initiator_id = $1 AND a.candidate_id = m.id
		        AND a.status != 'pending'
		  )
		ORDER BY m.last_active_at DESC
		LIMIT $4
	`

	rows, err := r.db.QueryxContext(ctx, query, seekerID, AccountActive, ApprovalApproved, poolSize)
	if err != nil {
		return nil, fmt.Errorf("list candidates for %d: %w", seekerID, err)
	}
	defer rows.Close()

	var candidates []*CandidateContext
	for rows.Next() {
		var row struct {
			Member
			Profile Profile `db:"profile"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		member := row.Member
		profile := row.Profile
		candidates = append(candidates, &CandidateContext{Member: &member, Profile: &profile})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list candidates for %d: %w", seekerID, err)
	}

	// Horoscopes and interests fetched in bulk for the pool
	if err := r.attachCandidateData(ctx, candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *postgresRepository) attachCandidateData(ctx context.Context, candidates []*CandidateContext) error {
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]int64, len(candidates))
	byID := make(map[int64]*CandidateContext, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Member.ID
		byID[c.Member.ID] = c
	}

	var horoscopes []Horoscope
	err := r.db.SelectContext(ctx, &horoscopes,
		`SELECT member_id, moon_sign, nakshatra, zodiac FROM horoscopes WHERE member_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("bulk horoscopes: %w", err)
	}
	for i := range horoscopes {
		h := horoscopes[i]
		byID[h.MemberID].Horoscope = &h
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT member_id, tag FROM member_interests WHERE member_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("bulk interests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memberID int64
		var tag string
		if err := rows.Scan(&memberID, &tag); err != nil {
			return fmt.Errorf("scan interest: %w", err)
		}
		c := byID[memberID]
		c.Interests = append(c.Interests, tag)
	}
	return rows.Err()
}

func (r *postgresRepository) ListBlockedMemberIDs(ctx context.Context, memberID int64) (map[int64]bool, error) {
	var ids []int64
	query := `
		SELECT CASE WHEN initiator_id = $1 THEN candidate_id ELSE initiator_id END
		FROM match_records
		WHERE status = 'blocked' AND (initiator_id = $1 OR candidate_id = $1)
	`
	if err := r.db.SelectContext(ctx, &ids, query, memberID); err != nil {
		return nil, fmt.Errorf("list blocked for %d: %w", memberID, err)
	}

	blocked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		blocked[id] = true
	}
	return blocked, nil
}

// IsBlocked reports whether either member has blocked the other
func (r *postgresRepository) IsBlocked(ctx context.Context, a, b int64) (bool, error) {
	var blocked bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM match_records
			WHERE status = 'blocked'
			  AND ((initiator_id = $1 AND candidate_id = $2)
			    OR (initiator_id = $2 AND candidate_id = $1))
		)
	`
	if err := r.db.GetContext(ctx, &blocked, query, a, b); err != nil {
		return false, fmt.Errorf("check block %d/%d: %w", a, b, err)
	}
	return blocked, nil
}

// UpsertPendingMatch persists a generated match. Scores only overwrite
// records still in pending so a concurrent user action is never lost;
// returns false when an acted-on record made the write a no-op.
func (r *postgresRepository) UpsertPendingMatch(ctx context.Context, rec *MatchRecord) (bool, error) {
	query := `
		INSERT INTO match_records (
			initiator_id, candidate_id, status, initiator_action, candidate_action,
			composite_score, sub_scores, can_communicate, expires_at
		) VALUES ($1, $2, 'pending', 'none', 'none', $3, $4, FALSE, $5)
		ON CONFLICT (initiator_id, candidate_id)
		DO UPDATE SET
			composite_score = EXCLUDED.composite_score,
			sub_scores = EXCLUDED.sub_scores,
			expires_at = EXCLUDED.expires_at,
			updated_at = CURRENT_TIMESTAMP
		WHERE match_records.status = 'pending'
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		rec.InitiatorID, rec.CandidateID, rec.CompositeScore, rec.SubScores, rec.ExpiresAt,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		// Existing record already acted on; leave it untouched
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert match %d->%d: %w", rec.InitiatorID, rec.CandidateID, err)
	}
	return true, nil
}

func (r *postgresRepository) GetMatchRecord(ctx context.Context, initiatorID, candidateID int64) (*MatchRecord, error) {
	var rec MatchRecord
	query := `
		SELECT id, initiator_id, candidate_id, status, initiator_action, candidate_action,
		       composite_score, sub_scores, can_communicate, created_at, updated_at, expires_at
		FROM match_records
		WHERE initiator_id = $1 AND candidate_id = $2
	`
	err := r.db.GetContext(ctx, &rec, query, initiatorID, candidateID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match %d->%d: %w", initiatorID, candidateID, err)
	}
	return &rec, nil
}

// RecordAction records an actor's action toward a target inside one
// transaction, mirroring it onto both ordered rows and recomputing the
// derived status. Mutuality is detected here so it fires exactly once.
func (r *postgresRepository) RecordAction(ctx context.Context, actorID, targetID int64, action MatchAction) (*ActionResult, error) {
	if !actorActions[action] {
		return nil, ErrInvalidAction
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record action: %w", err)
	}
	defer tx.Rollback()

	rec, err := r.lockOrCreateRecord(ctx, tx, actorID, targetID)
	if err != nil {
		return nil, err
	}

	if rec.Status == StatusBlocked {
		return &ActionResult{Record: rec, AlreadyFinal: true}, tx.Commit()
	}

	wasMutual := rec.Status == StatusMutual

	rec.InitiatorAction = action
	rec.Status = DeriveStatus(rec.InitiatorAction, rec.CandidateAction)
	rec.CanCommunicate = DeriveCanCommunicate(rec.Status, false)

	if err := r.updateRecordState(ctx, tx, rec); err != nil {
		return nil, err
	}

	// Mirror onto the reverse row so both directions stay visible
	mirror := `
		INSERT INTO match_records (
			initiator_id, candidate_id, status, initiator_action, candidate_action,
			composite_score, sub_scores, can_communicate
		) VALUES ($1, $2, $3, $4, $5, 0, '{}', $6)
		ON CONFLICT (initiator_id, candidate_id)
		DO UPDATE SET
			candidate_action = $5,
			status = $3,
			can_communicate = $6,
			updated_at = CURRENT_TIMESTAMP
	`
	reverseStatus := DeriveStatus(rec.CandidateAction, rec.InitiatorAction)
	if _, err := tx.ExecContext(ctx, mirror,
		targetID, actorID, reverseStatus, rec.CandidateAction, rec.InitiatorAction,
		DeriveCanCommunicate(reverseStatus, false)); err != nil {
		return nil, fmt.Errorf("mirror action %d->%d: %w", targetID, actorID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record action: %w", err)
	}

	return &ActionResult{
		Record:      rec,
		NewlyMutual: rec.Status == StatusMutual && !wasMutual,
	}, nil
}

func (r *postgresRepository) lockOrCreateRecord(ctx context.Context, tx *sqlx.Tx, actorID, targetID int64) (*MatchRecord, error) {
	var rec MatchRecord
	query := `
		SELECT id, initiator_id, candidate_id, status, initiator_action, candidate_action,
		       composite_score, sub_scores, can_communicate, created_at, updated_at, expires_at
		FROM match_records
		WHERE initiator_id = $1 AND candidate_id = $2
		FOR UPDATE
	`
	err := tx.GetContext(ctx, &rec, query, actorID, targetID)
	if err == nil {
		return &rec, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("lock match %d->%d: %w", actorID, targetID, err)
	}

	insert := `
		INSERT INTO match_records (
			initiator_id, candidate_id, status, initiator_action, candidate_action,
			composite_score, sub_scores, can_communicate
		) VALUES ($1, $2, 'pending', 'none', 'none', 0, '{}', FALSE)
		RETURNING id, initiator_id, candidate_id, status, initiator_action, candidate_action,
		          composite_score, sub_scores, can_communicate, created_at, updated_at, expires_at
	`
	if err := tx.GetContext(ctx, &rec, insert, actorID, targetID); err != nil {
		return nil, fmt.Errorf("create match %d->%d: %w", actorID, targetID, err)
	}
	return &rec, nil
}

func (r *postgresRepository) updateRecordState(ctx context.Context, tx *sqlx.Tx, rec *MatchRecord) error {
	query := `
		UPDATE match_records
		SET initiator_action = $2, candidate_action = $3, status = $4,
		    can_communicate = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query,
		rec.ID, rec.InitiatorAction, rec.CandidateAction, rec.Status, rec.CanCommunicate); err != nil {
		return fmt.Errorf("update match %d: %w", rec.ID, err)
	}
	return nil
}

// ExpireStaleMatches transitions aged-out pending records to expired
func (r *postgresRepository) ExpireStaleMatches(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE match_records
		SET status = 'expired', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("expire stale matches: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *postgresRepository) SetLastMatchesGeneratedAt(ctx context.Context, memberID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET last_matches_generated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		memberID)
	if err != nil {
		return fmt.Errorf("set last generated %d: %w", memberID, err)
	}
	return nil
}
