package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Refresher runs background refresh jobs (index rebuild, manifest warmup)
// on a cron schedule. An empty Cron disables it.
type Refresher struct {
	Cron   string
	Jobs   []func(context.Context)
	Logger *log.Logger

	stop chan struct{}
}

func (r *Refresher) Start() {
	if r.Cron == "" {
		return
	}
	expr, err := cronexpr.Parse(r.Cron)
	if err != nil {
		// config validation rejects bad expressions before we get here
		r.Logger.Printf("invalid refresh cron %q: %v", r.Cron, err)
		return
	}

	r.stop = make(chan struct{})
	go func() {
		for {
			next := expr.Next(time.Now())
			if next.IsZero() {
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-r.stop:
				timer.Stop()
				return
			case <-timer.C:
				r.runOnce()
			}
		}
	}()
}

func (r *Refresher) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	started := time.Now()
	for _, job := range r.Jobs {
		job(ctx)
	}
	r.Logger.Printf("refresh completed in %s", time.Since(started))
}

// StopNow halts the schedule. Safe to call when Start never ran.
func (r *Refresher) StopNow() {
	if r.stop != nil {
		close(r.stop)
	}
}
