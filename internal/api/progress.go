package api

import (
	"time"

	"golang.org/x/time/rate"

	"vrptabu/internal/opt"
)

const progressInterval = 250 * time.Millisecond

// progress turns engine iterations into run.progress events. Improvements
// always go out; other iterations at most once per progressInterval. The
// observer may be called from several seeds at once.
type progress struct {
	broker EventBroker
	runID  string
	every  rate.Sometimes
}

func newProgress(b EventBroker, runID string) *progress {
	return &progress{broker: b, runID: runID, every: rate.Sometimes{First: 1, Interval: progressInterval}}
}

func (p *progress) observe(ev opt.IterationEvent) {
	publish := func() {
		p.broker.Publish(p.runID, Event{Type: EventRunProgress, Data: map[string]any{
			"runId":      p.runID,
			"iteration":  ev.Iteration,
			"winner":     ev.Winner,
			"current":    ev.Current,
			"best":       ev.Best,
			"improved":   ev.Improved,
			"stagnation": ev.Stagnation,
		}})
	}
	if ev.Improved {
		publish()
		return
	}
	p.every.Do(publish)
}
