package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bazaarchat"

// Upgrade outcomes.
const (
	UpgradeMigrated = "migrated"
	UpgradeNoop     = "noop"
	UpgradeFailed   = "failed"
	UpgradeAdopted  = "adopted"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Messages appended to a conversation.",
	})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_created_total",
		Help:      "Notifications written to an inbox, by type.",
	}, []string{"type"})

	FanoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fanout_failures_total",
		Help:      "Recipients whose notification could not be written.",
	})

	ConversationUpgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversation_upgrades_total",
		Help:      "Conversation upgrade attempts, by outcome.",
	}, []string{"outcome"})

	DeliverySubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "delivery_subscribers",
		Help:      "Active message delivery subscriptions.",
	})

	DeliveryResubscribes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_resubscribes_total",
		Help:      "Times a delivery subscription reopened its change feed.",
	})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Open websocket connections.",
	})
)
