package notification

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType enumerates the events this system notifies about
type NotificationType string

const (
	TypeNewMatch          NotificationType = "new_match"
	TypeMutualMatch       NotificationType = "mutual_match"
	TypeSuperLike         NotificationType = "super_like"
	TypeProfileView       NotificationType = "profile_view"
	TypeInterestExpressed NotificationType = "interest_expressed"
	TypeMessage           NotificationType = "message"
)

// Urgent types bypass quiet hours and daily caps
func (t NotificationType) Urgent() bool {
	return t == TypeMutualMatch || t == TypeSuperLike
}

// Priority of a notification record
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Payload is the tagged per-type notification payload. Each type has
// exactly one payload shape; the payload's type drives dispatch.
type Payload interface {
	NotificationType() NotificationType
}

type NewMatchPayload struct {
	MatchedMemberID int64   `json:"matched_member_id"`
	MatchID         int64   `json:"match_id"`
	Score           float64 `json:"score"`
	ActionURL       string  `json:"action_url"`
}

func (NewMatchPayload) NotificationType() NotificationType { return TypeNewMatch }

type MutualMatchPayload struct {
	MatchedMemberID int64  `json:"matched_member_id"`
	MatchID         int64  `json:"match_id"`
	ActionURL       string `json:"action_url"`
}

func (MutualMatchPayload) NotificationType() NotificationType { return TypeMutualMatch }

type SuperLikePayload struct {
	FromMemberID int64  `json:"from_member_id"`
	MatchID      int64  `json:"match_id"`
	ActionURL    string `json:"action_url"`
}

func (SuperLikePayload) NotificationType() NotificationType { return TypeSuperLike }

type ProfileViewPayload struct {
	ViewerID  int64  `json:"viewer_id"`
	ActionURL string `json:"action_url"`
}

func (ProfileViewPayload) NotificationType() NotificationType { return TypeProfileView }

type InterestExpressedPayload struct {
	FromMemberID int64  `json:"from_member_id"`
	ActionURL    string `json:"action_url"`
}

func (InterestExpressedPayload) NotificationType() NotificationType { return TypeInterestExpressed }

type MessagePayload struct {
	SenderID       int64  `json:"sender_id"`
	ConversationID string `json:"conversation_id"`
	Preview        string `json:"preview"`
	ActionURL      string `json:"action_url"`
}

func (MessagePayload) NotificationType() NotificationType { return TypeMessage }

// DecodePayload unmarshals raw payload bytes into the variant for the
// given type.
func DecodePayload(t NotificationType, raw []byte) (Payload, error) {
	var p Payload
	switch t {
	case TypeNewMatch:
		p = &NewMatchPayload{}
	case TypeMutualMatch:
		p = &MutualMatchPayload{}
	case TypeSuperLike:
		p = &SuperLikePayload{}
	case TypeProfileView:
		p = &ProfileViewPayload{}
	case TypeInterestExpressed:
		p = &InterestExpressedPayload{}
	case TypeMessage:
		p = &MessagePayload{}
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}

// RawPayload is the persisted JSONB form of a payload
type RawPayload json.RawMessage

func (r *RawPayload) Scan(value interface{}) error {
	if value == nil {
		*r = RawPayload("{}")
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	*r = append(RawPayload(nil), bytes...)
	return nil
}

func (r RawPayload) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "{}", nil
	}
	return []byte(r), nil
}

// Record is the persisted in-app notification. EventID makes fanout
// retries idempotent: one logical event yields at most one record.
type Record struct {
	ID        int64            `json:"id" db:"id"`
	EventID   string           `json:"event_id" db:"event_id"`
	UserID    int64            `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Payload   RawPayload       `json:"data" db:"payload"`
	Priority  Priority         `json:"priority" db:"priority"`
	IsRead    bool             `json:"is_read" db:"is_read"`
	ReadAt    *time.Time       `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt time.Time        `json:"expires_at" db:"expires_at"`
}

// Recipient is the notification-relevant view of a member
type Recipient struct {
	ID                   int64  `json:"id" db:"id"`
	Email                string `json:"email" db:"email"`
	Timezone             string `json:"timezone" db:"timezone"`
	PremiumActive        bool   `json:"premium_active" db:"premium_active"`
	NotificationsEnabled bool   `json:"notifications_enabled" db:"notifications_enabled"`
	PushEnabled          bool   `json:"push_enabled" db:"push_enabled"`
	EmailEnabled         bool   `json:"email_enabled" db:"email_enabled"`
	NewMatches           bool   `json:"new_matches" db:"new_matches"`
	Messages             bool   `json:"messages" db:"messages"`
	ProfileViews         bool   `json:"profile_views" db:"profile_views"`
	Interests            bool   `json:"interests" db:"interests"`
}

// TypeEnabled reports the recipient's per-type preference. Mutual
// matches and super-likes ride the new-match preference.
func (r *Recipient) TypeEnabled(t NotificationType) bool {
	switch t {
	case TypeNewMatch, TypeMutualMatch, TypeSuperLike:
		return r.NewMatches
	case TypeMessage:
		return r.Messages
	case TypeProfileView:
		return r.ProfileViews
	case TypeInterestExpressed:
		return r.Interests
	default:
		return true
	}
}

// DispatchContext carries the event context the policy checks against
type DispatchContext struct {
	ActorID        int64  // counterpart member, 0 when not applicable
	ConversationID string // set for message-type events
}

// PushMessage is what the push sender delivers
type PushMessage struct {
	UserID   int64
	Title    string
	Body     string
	Data     map[string]string
	Priority Priority
}

// EmailMessage is what the email sender delivers
type EmailMessage struct {
	To      string
	Subject string
	Body    string
	HTML    string
}
