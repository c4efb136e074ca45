package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command dispatch metrics.
var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_commands_total",
		Help: "Slash commands handled by command and result",
	}, []string{"command", "result"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hearth_command_duration_seconds",
		Help:    "Slash command handler duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"command"})

	CooldownRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_cooldown_rejections_total",
		Help: "Invocations rejected because the caller was on cooldown",
	}, []string{"command"})
)

// Cooldown tracker gauges (updated periodically).
var (
	CooldownTrackedActions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_cooldown_tracked_actions",
		Help: "Number of actions with a cooldown map",
	})

	CooldownActiveEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_cooldown_active_entries",
		Help: "Number of stored cooldown entries, including ones awaiting cleanup",
	})
)

// Event metrics.
var (
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_notifications_total",
		Help: "Webhook notifications by event and result",
	}, []string{"event", "result"})

	WelcomeMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_welcome_messages_total",
		Help: "Welcome messages by result",
	}, []string{"result"})

	PremiumExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearth_premium_expired_total",
		Help: "Premium records removed by the sweeper",
	})
)

// Database pool metrics (postgres only).
var (
	DBPoolTotalConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_db_pool_total_conns",
		Help: "Total number of connections in the pool",
	})

	DBPoolAcquiredConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_db_pool_acquired_conns",
		Help: "Number of acquired connections in the pool",
	})
)
