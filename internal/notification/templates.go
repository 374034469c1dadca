package notification

import "fmt"

// Fixed title/body per type. Rendering of rich templates is an
// external collaborator concern; these are the logical payloads.

type template struct {
	title    string
	body     string
	priority Priority
}

var templates = map[NotificationType]template{
	TypeNewMatch: {
		title:    "New match suggestion",
		body:     "We found a profile that matches your preferences. Take a look!",
		priority: PriorityMedium,
	},
	TypeMutualMatch: {
		title:    "It's a match!",
		body:     "You both expressed interest in each other. Start a conversation now.",
		priority: PriorityHigh,
	},
	TypeSuperLike: {
		title:    "Someone is really interested",
		body:     "A member sent you a super like. See who it is.",
		priority: PriorityHigh,
	},
	TypeProfileView: {
		title:    "Your profile was viewed",
		body:     "A member viewed your profile recently.",
		priority: PriorityLow,
	},
	TypeInterestExpressed: {
		title:    "New interest received",
		body:     "A member expressed interest in your profile.",
		priority: PriorityMedium,
	},
	TypeMessage: {
		title:    "New message",
		body:     "You have a new message waiting.",
		priority: PriorityMedium,
	},
}

// TemplateFor returns the fixed title, body and priority for a type
func TemplateFor(t NotificationType) (title, body string, priority Priority) {
	tpl, ok := templates[t]
	if !ok {
		return string(t), "", PriorityLow
	}
	return tpl.title, tpl.body, tpl.priority
}

// ActionURLFor builds the client deep link for a notification
func ActionURLFor(t NotificationType, counterpartID int64, conversationID string) string {
	switch t {
	case TypeNewMatch, TypeSuperLike, TypeProfileView, TypeInterestExpressed:
		return fmt.Sprintf("/members/%d", counterpartID)
	case TypeMutualMatch:
		return fmt.Sprintf("/matches/%d", counterpartID)
	case TypeMessage:
		return "/conversations/" + conversationID
	default:
		return "/"
	}
}
