package fluid

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exports pipeline counters. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	frames        prometheus.Counter
	droppedFrames *prometheus.CounterVec
	stepDuration  prometheus.Histogram
	passRuns      *prometheus.CounterVec
	events        prometheus.Counter
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fluid",
			Name:      "frames_total",
			Help:      "Simulation steps completed.",
		}),
		droppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluid",
			Name:      "dropped_frames_total",
			Help:      "Frames abandoned after a backend error, by stage.",
		}, []string{"stage"}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fluid",
			Name:      "step_duration_seconds",
			Help:      "Wall time of one simulation step.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		passRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluid",
			Name:      "pass_renders_total",
			Help:      "Kernel renders issued, by pass.",
		}, []string{"pass"}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fluid",
			Name:      "force_events_total",
			Help:      "Force injection events consumed.",
		}),
	}
	for _, c := range []prometheus.Collector{r.frames, r.droppedFrames, r.stepDuration, r.passRuns, r.events} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) passExecuted(name string, iterations int) {
	if r == nil {
		return
	}
	r.passRuns.WithLabelValues(name).Add(float64(iterations))
}

func (r *Recorder) stepDone(d time.Duration, events int) {
	if r == nil {
		return
	}
	r.frames.Inc()
	r.stepDuration.Observe(d.Seconds())
	r.events.Add(float64(events))
}

// FrameDropped counts a frame abandoned in stage.
func (r *Recorder) FrameDropped(stage string) {
	if r == nil {
		return
	}
	r.droppedFrames.WithLabelValues(stage).Inc()
}
