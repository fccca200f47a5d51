package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Chat client collectors. Channel labels use the channel kind, never the raw
// id, so location rooms cannot blow up cardinality.
var (
	// ClientCalls counts facade calls by operation and result kind.
	ClientCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_calls_total",
			Help: "Chat client operations by result.",
		},
		[]string{"op", "result"},
	)

	// MessagesSent counts stored messages by channel kind.
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages accepted and stored.",
		},
		[]string{"channel_kind"},
	)

	// MessagesRejected counts filter rejections by reason.
	MessagesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_rejected_total",
			Help: "Messages rejected by the spam/validity filter.",
		},
		[]string{"reason"},
	)

	// RateLimited counts limiter denials by channel kind.
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rate_limited_total",
			Help: "Sends denied by the client rate limiter.",
		},
		[]string{"channel_kind"},
	)

	// FeedLoads counts history reads by tier and outcome (hit, miss, error).
	FeedLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_feed_loads_total",
			Help: "Feed history reads by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	// LiveDeliveries counts messages appended from live subscriptions.
	LiveDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_live_deliveries_total",
			Help: "Messages delivered by live subscriptions.",
		},
	)

	// Reports counts report actions by outcome (counted, flagged, duplicate).
	Reports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_reports_total",
			Help: "Report actions by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(ClientCalls, MessagesSent, MessagesRejected, RateLimited, FeedLoads, LiveDeliveries, Reports)
}
