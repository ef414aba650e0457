package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"bracket-core/internal/events"
)

// Recorder persists relayed events; the trade journal implements it.
type Recorder interface {
	Record(ctx context.Context, symbol, event, detail string) (string, error)
}

// Watcher forwards noteworthy bus events to an AlertSink and, when a Recorder
// is configured, journals them.
type Watcher struct {
	Bus     *events.Bus
	Sink    AlertSink
	Journal Recorder
}

// Topics the watcher relays. Monitor ticks are deliberately excluded; they
// are too chatty for an alert channel.
var watchedTopics = []events.Event{
	events.EventPriceAlert,
	events.EventOrderRejected,
	events.EventReconnectExhausted,
	events.EventConnectionLost,
}

func (w *Watcher) Start(ctx context.Context) {
	if w.Bus == nil || w.Sink == nil {
		log.Println("watcher: not fully configured; skipping")
		return
	}
	for _, topic := range watchedTopics {
		sub := w.Bus.Subscribe(topic, 50)
		go func(topic events.Event, sub *events.Subscription) {
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-sub.C:
					if !ok {
						return
					}
					if err := w.Sink.Send(formatAlert(topic, msg)); err != nil {
						log.Printf("watcher: alert delivery failed: %v", err)
					}
					w.record(ctx, topic, msg)
				}
			}
		}(topic, sub)
	}
}

// record journals the event best-effort; the trail must never stall delivery.
func (w *Watcher) record(ctx context.Context, topic events.Event, msg any) {
	if w.Journal == nil {
		return
	}
	symbol := ""
	if a, ok := msg.(Alert); ok {
		symbol = a.Symbol
	}
	if _, err := w.Journal.Record(ctx, symbol, string(topic), toString(msg)); err != nil {
		log.Printf("watcher: journal write failed: %v", err)
	}
}

func formatAlert(topic events.Event, msg any) string {
	return "[" + time.Now().Format(time.RFC3339) + "] " + string(topic) + ": " + toString(msg)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "(no detail)"
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}

// LogSink writes alerts to the process log. The default sink when no
// external channel is configured.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Println("ALERT", message)
	return nil
}
