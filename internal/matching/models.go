package matching

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// MatchAction is one member's recorded action toward the other
type MatchAction string

const (
	ActionNone       MatchAction = "none"
	ActionLiked      MatchAction = "liked"
	ActionSuperLiked MatchAction = "super_liked"
	ActionDisliked   MatchAction = "disliked"
	ActionBlocked    MatchAction = "blocked"
)

// Positive reports whether the action counts toward mutuality
func (a MatchAction) Positive() bool {
	return a == ActionLiked || a == ActionSuperLiked
}

// MatchStatus is the derived state of a match record
type MatchStatus string

const (
	StatusPending    MatchStatus = "pending"
	StatusLiked      MatchStatus = "liked"
	StatusSuperLiked MatchStatus = "super_liked"
	StatusDisliked   MatchStatus = "disliked"
	StatusBlocked    MatchStatus = "blocked"
	StatusMutual     MatchStatus = "mutual"
	StatusExpired    MatchStatus = "expired"
)

// AccountStatus values mirrored from the member service
const (
	AccountActive    = "active"
	AccountSuspended = "suspended"
	AccountDeleted   = "deleted"
)

// Profile approval values mirrored from the moderation service
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Member holds identity and status attributes. Owned by external
// collaborators; read-only here except LastMatchesGeneratedAt.
type Member struct {
	ID                     int64      `json:"id" db:"id"`
	FullName               string     `json:"full_name" db:"full_name"`
	Gender                 string     `json:"gender" db:"gender"`
	BirthDate              time.Time  `json:"birth_date" db:"birth_date"`
	Email                  string     `json:"email" db:"email"`
	Timezone               string     `json:"timezone" db:"timezone"`
	AccountStatus          string     `json:"account_status" db:"account_status"`
	ProfileApproval        string     `json:"profile_approval" db:"profile_approval"`
	ProfileCompletion      int        `json:"profile_completion" db:"profile_completion"`
	PremiumActive          bool       `json:"premium_active" db:"premium_active"`
	Verified               bool       `json:"verified" db:"verified"`
	LastActiveAt           time.Time  `json:"last_active_at" db:"last_active_at"`
	LastMatchesGeneratedAt *time.Time `json:"last_matches_generated_at,omitempty" db:"last_matches_generated_at"`
}

// Age returns the member's age in whole years at the given time
func (m *Member) Age(at time.Time) int {
	years := at.Year() - m.BirthDate.Year()
	anniversary := m.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// Profile holds physical, career and cultural attributes. One-to-one
// with Member, mutated only by the profile-editing collaborator.
type Profile struct {
	MemberID       int64  `json:"member_id" db:"member_id"`
	HeightCM       int    `json:"height_cm" db:"height_cm"`
	EducationLevel string `json:"education_level" db:"education_level"`
	Occupation     string `json:"occupation" db:"occupation"`
	Religion       string `json:"religion" db:"religion"`
	City           string `json:"city" db:"city"`
	Country        string `json:"country" db:"country"`
	Smoking        string `json:"smoking" db:"smoking"`
	Drinking       string `json:"drinking" db:"drinking"`
	Diet           string `json:"diet" db:"diet"`
}

// Preference holds one member's desired partner attributes. Empty sets
// mean no preference for that dimension.
type Preference struct {
	MemberID        int64          `json:"member_id" db:"member_id"`
	MinAge          int            `json:"min_age" db:"min_age"`
	MaxAge          int            `json:"max_age" db:"max_age"`
	Religions       pq.StringArray `json:"religions" db:"religions"`
	EducationLevels pq.StringArray `json:"education_levels" db:"education_levels"`
	Cities          pq.StringArray `json:"cities" db:"cities"`
	Countries       pq.StringArray `json:"countries" db:"countries"`
	Smoking         pq.StringArray `json:"smoking" db:"smoking"`
	Drinking        pq.StringArray `json:"drinking" db:"drinking"`
	Diet            pq.StringArray `json:"diet" db:"diet"`
	DealBreakers    pq.StringArray `json:"deal_breakers" db:"deal_breakers"`
}

// HasDealBreaker reports whether the dimension is declared a hard constraint
func (p *Preference) HasDealBreaker(dimension string) bool {
	for _, d := range p.DealBreakers {
		if d == dimension {
			return true
		}
	}
	return false
}

// Horoscope holds optional astrological attributes
type Horoscope struct {
	MemberID  int64  `json:"member_id" db:"member_id"`
	MoonSign  string `json:"moon_sign" db:"moon_sign"`
	Nakshatra string `json:"nakshatra" db:"nakshatra"`
	Zodiac    string `json:"zodiac" db:"zodiac"`
}

// SeekerContext bundles everything needed to score on behalf of one member
type SeekerContext struct {
	Member     *Member
	Profile    *Profile
	Preference *Preference
	Horoscope  *Horoscope // nil when not provided
	Interests  []string
}

// CandidateContext bundles the scored side of a pair
type CandidateContext struct {
	Member    *Member
	Profile   *Profile
	Horoscope *Horoscope // nil when not provided
	Interests []string
}

// SubScores are the per-dimension components of a composite score
type SubScores struct {
	Age       float64 `json:"age"`
	Location  float64 `json:"location"`
	Education float64 `json:"education"`
	Religion  float64 `json:"religion"`
	Lifestyle float64 `json:"lifestyle"`
	Interests float64 `json:"interests"`
	Horoscope float64 `json:"horoscope"`
	Activity  float64 `json:"activity"`
}

// Scan implements sql.Scanner for the JSONB column
func (s *SubScores) Scan(value interface{}) error {
	if value == nil {
		*s = SubScores{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer for the JSONB column
func (s SubScores) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// MatchRecord is the pairwise match entity. One row per ordered
// (initiator, candidate) pair; actions are mirrored onto the reverse
// row inside the recording transaction so visibility stays symmetric.
type MatchRecord struct {
	ID              int64       `json:"id" db:"id"`
	InitiatorID     int64       `json:"initiator_id" db:"initiator_id"`
	CandidateID     int64       `json:"candidate_id" db:"candidate_id"`
	Status          MatchStatus `json:"status" db:"status"`
	InitiatorAction MatchAction `json:"initiator_action" db:"initiator_action"`
	CandidateAction MatchAction `json:"candidate_action" db:"candidate_action"`
	CompositeScore  float64     `json:"composite_score" db:"composite_score"`
	SubScores       SubScores   `json:"sub_scores" db:"sub_scores"`
	CanCommunicate  bool        `json:"can_communicate" db:"can_communicate"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
	ExpiresAt       *time.Time  `json:"expires_at,omitempty" db:"expires_at"`
}

// ScoredCandidate pairs a candidate with its computed score
type ScoredCandidate struct {
	Candidate *CandidateContext
	Score     float64
	SubScores SubScores
}
