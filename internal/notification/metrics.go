package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notification records created, by type",
	}, []string{"type"})

	notificationsVetoed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_vetoed_total",
		Help: "Notifications suppressed by dispatch policy, by type and reason",
	}, []string{"type", "reason"})

	pushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_push_deliveries_total",
		Help: "Push delivery attempts by outcome",
	}, []string{"outcome"})

	emailDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_email_deliveries_total",
		Help: "Email delivery attempts by outcome",
	}, []string{"outcome"})
)
