package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
)

// PushSender delivers a push notification to a member's devices
type PushSender interface {
	Send(ctx context.Context, msg *PushMessage) error
}

// EmailSender delivers one email
type EmailSender interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// EmailEnqueuer hands email delivery to the emails queue so sender
// failures retry independently of the fanout task.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, msg *EmailMessage) error
}

// Event is one logical notification event. EventID is stable across
// task retries and keys the idempotent record insert.
type Event struct {
	EventID        string           `json:"event_id" validate:"required"`
	RecipientID    int64            `json:"recipient_id" validate:"required"`
	Type           NotificationType `json:"type" validate:"required"`
	ActorID        int64            `json:"actor_id,omitempty"`
	MatchID        int64            `json:"match_id,omitempty"`
	Score          float64          `json:"score,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Preview        string           `json:"preview,omitempty"`
}

// RetentionConfig sets per-type record lifetimes
type RetentionConfig struct {
	Match   time.Duration // new_match, mutual_match, super_like, profile_view, interest_expressed
	Message time.Duration
}

// Fanout turns an approved notification decision into the persisted
// in-app record plus push and email deliveries.
type Fanout struct {
	repo      Repository
	policy    *DispatchPolicy
	push      PushSender
	emails    EmailEnqueuer
	clock     clock.Clock
	retention RetentionConfig
}

func NewFanout(repo Repository, policy *DispatchPolicy, push PushSender, emails EmailEnqueuer, clk clock.Clock, retention RetentionConfig) *Fanout {
	return &Fanout{
		repo:      repo,
		policy:    policy,
		push:      push,
		emails:    emails,
		clock:     clk,
		retention: retention,
	}
}

// Deliver processes one event end to end. The record insert is
// idempotent per event; push delivery is at-least-once and a push
// failure surfaces as an error so the task layer retries it without
// duplicating the record or the email.
func (f *Fanout) Deliver(ctx context.Context, ev *Event) error {
	recipient, err := f.repo.GetRecipient(ctx, ev.RecipientID)
	if err != nil {
		return err
	}

	rec, err := f.buildRecord(ev)
	if err != nil {
		return err
	}

	// A retry of an already-recorded event re-runs delivery only; the
	// policy already approved it once and its own counter bump must
	// not veto the retry.
	delivered, err := f.repo.EventDelivered(ctx, ev.EventID)
	if err != nil {
		return err
	}
	if delivered {
		log.Printf("notification: event %s already recorded, retrying delivery", ev.EventID)
		return f.sendPush(ctx, recipient, rec)
	}

	allowed, err := f.policy.ShouldNotify(ctx, recipient, ev.Type, &DispatchContext{
		ActorID:        ev.ActorID,
		ConversationID: ev.ConversationID,
	})
	if err != nil {
		return err
	}
	if !allowed {
		log.Printf("notification: %s event %s for member %d vetoed by policy", ev.Type, ev.EventID, ev.RecipientID)
		return nil
	}

	inserted, err := f.repo.CreateIfAbsent(ctx, rec)
	if err != nil {
		return err
	}

	if inserted {
		notificationsSent.WithLabelValues(string(ev.Type)).Inc()
		if err := f.policy.RecordDelivery(ctx, ev.RecipientID, ev.Type); err != nil {
			log.Printf("notification: counter update failed for event %s: %v", ev.EventID, err)
		}
		f.enqueueEmail(ctx, recipient, rec)
	}

	return f.sendPush(ctx, recipient, rec)
}

func (f *Fanout) buildRecord(ev *Event) (*Record, error) {
	payload, err := buildPayload(ev)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}

	title, body, priority := TemplateFor(ev.Type)
	return &Record{
		EventID:   ev.EventID,
		UserID:    ev.RecipientID,
		Type:      ev.Type,
		Title:     title,
		Message:   body,
		Payload:   RawPayload(raw),
		Priority:  priority,
		ExpiresAt: f.clock.Now().Add(f.retentionFor(ev.Type)),
	}, nil
}

func buildPayload(ev *Event) (Payload, error) {
	actionURL := ActionURLFor(ev.Type, ev.ActorID, ev.ConversationID)
	switch ev.Type {
	case TypeNewMatch:
		return &NewMatchPayload{MatchedMemberID: ev.ActorID, MatchID: ev.MatchID, Score: ev.Score, ActionURL: actionURL}, nil
	case TypeMutualMatch:
		return &MutualMatchPayload{MatchedMemberID: ev.ActorID, MatchID: ev.MatchID, ActionURL: actionURL}, nil
	case TypeSuperLike:
		return &SuperLikePayload{FromMemberID: ev.ActorID, MatchID: ev.MatchID, ActionURL: actionURL}, nil
	case TypeProfileView:
		return &ProfileViewPayload{ViewerID: ev.ActorID, ActionURL: actionURL}, nil
	case TypeInterestExpressed:
		return &InterestExpressedPayload{FromMemberID: ev.ActorID, ActionURL: actionURL}, nil
	case TypeMessage:
		return &MessagePayload{SenderID: ev.ActorID, ConversationID: ev.ConversationID, Preview: ev.Preview, ActionURL: actionURL}, nil
	default:
		return nil, fmt.Errorf("unknown notification type %q", ev.Type)
	}
}

func (f *Fanout) retentionFor(t NotificationType) time.Duration {
	if t == TypeMessage {
		return f.retention.Message
	}
	return f.retention.Match
}

func (f *Fanout) sendPush(ctx context.Context, recipient *Recipient, rec *Record) error {
	if f.push == nil || !recipient.PushEnabled {
		return nil
	}

	msg := &PushMessage{
		UserID: recipient.ID,
		Title:  rec.Title,
		Body:   rec.Message,
		Data: map[string]string{
			"type":     string(rec.Type),
			"event_id": rec.EventID,
		},
		Priority: rec.Priority,
	}
	if err := f.push.Send(ctx, msg); err != nil {
		return fmt.Errorf("push delivery for event %s: %w", rec.EventID, err)
	}
	return nil
}

// Email goes out for match events only, gated by the recipient's
// email preference.
func (f *Fanout) enqueueEmail(ctx context.Context, recipient *Recipient, rec *Record) {
	if f.emails == nil || !recipient.EmailEnabled {
		return
	}
	if rec.Type != TypeNewMatch && rec.Type != TypeMutualMatch {
		return
	}

	msg := &EmailMessage{
		To:      recipient.Email,
		Subject: rec.Title,
		Body:    rec.Message,
	}
	if err := f.emails.EnqueueEmail(ctx, msg); err != nil {
		log.Printf("notification: failed to enqueue email for event %s: %v", rec.EventID, err)
	}
}
