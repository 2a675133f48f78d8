package answer

import "time"

// recorder accumulates the per-request diagnostics that end up in Meta.
// A request is a sequential pipeline, so no locking is needed here.
type recorder struct {
	now       func() time.Time
	start     time.Time
	timings   map[string]int64
	warnings  []string
	providers []string
	links     VerifiedLinks
}

func newRecorder(now func() time.Time) *recorder {
	if now == nil {
		now = time.Now
	}
	return &recorder{
		now:     now,
		start:   now(),
		timings: make(map[string]int64),
	}
}

// stage returns a func that records the elapsed time under name when called.
func (r *recorder) stage(name string) func() {
	begin := r.now()
	return func() {
		r.timings[name] = r.now().Sub(begin).Milliseconds()
	}
}

func (r *recorder) warn(msg string) {
	r.warnings = append(r.warnings, msg)
}

func (r *recorder) provider(name string) {
	for _, p := range r.providers {
		if p == name {
			return
		}
	}
	r.providers = append(r.providers, name)
}

func (r *recorder) linkResult(url string, ok bool) {
	r.links.Total++
	if ok {
		r.links.Valid++
		return
	}
	r.links.Removed++
	r.links.URLs = append(r.links.URLs, url)
}

// finalize closes the total timer and returns the deduplicated warning list
// in first-seen order.
func (r *recorder) finalize() []string {
	r.timings["total"] = r.now().Sub(r.start).Milliseconds()

	seen := make(map[string]bool, len(r.warnings))
	out := make([]string, 0, len(r.warnings))
	for _, w := range r.warnings {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
