package chatlog

import "github.com/prometheus/client_golang/prometheus"

var EntriesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "chat_journal_entries_dropped_total",
	Help: "Journal entries rejected before reaching the writer",
}, []string{"reason"})

func init() {
	prometheus.MustRegister(EntriesDropped)
}
