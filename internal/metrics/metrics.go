// ABOUTME: Prometheus collectors shared by the broadcaster, bot engine and gateway
// ABOUTME: Registered once on the default registry and exposed at /metrics

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsPublished counts events fanned out by the broadcaster, by event type.
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cool_squad_events_published_total",
			Help: "Events published to subscriber queues.",
		},
		[]string{"type"},
	)

	// SubscriberOverruns counts events dropped because a subscriber queue was full.
	SubscriberOverruns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cool_squad_subscriber_overruns_total",
			Help: "Events dropped from full subscriber queues (resync marker queued instead).",
		},
	)

	// ActiveSubscribers tracks open stream subscriptions.
	ActiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cool_squad_active_subscribers",
			Help: "Currently open stream subscriptions.",
		},
	)

	// MessagesAppended counts messages stored, by resource kind (channel, thread).
	MessagesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cool_squad_messages_appended_total",
			Help: "Messages appended to channels and threads.",
		},
		[]string{"kind"},
	)

	// BotRuns counts finished engine runs, by bot and outcome.
	BotRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cool_squad_bot_runs_total",
			Help: "Bot engine runs by outcome (responded, silent, aborted).",
		},
		[]string{"bot", "outcome"},
	)

	// ToolCalls counts executed tool calls, by tool and result.
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cool_squad_tool_calls_total",
			Help: "Tool calls executed by bots (ok, error).",
		},
		[]string{"tool", "result"},
	)

	// TokensUsed counts provider tokens, by provider and model.
	TokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cool_squad_tokens_used_total",
			Help: "Tokens reported by reasoning providers.",
		},
		[]string{"provider", "model"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsPublished,
		SubscriberOverruns,
		ActiveSubscribers,
		MessagesAppended,
		BotRuns,
		ToolCalls,
		TokensUsed,
	)
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
