package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transcript event results.
const (
	Written  = "written"
	Failed   = "failed"
	Overflow = "overflow"
	Dropped  = "dropped"
)

type collectors struct {
	registry *prometheus.Registry

	transcriptEvents *prometheus.CounterVec
	personaFetch     *prometheus.CounterVec
	personaApply     *prometheus.CounterVec
}

var (
	once sync.Once
	inst *collectors
)

func get() *collectors {
	once.Do(func() {
		c := &collectors{
			registry: prometheus.NewRegistry(),
			transcriptEvents: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "friday_transcript_events_total",
					Help: "Transcript events by outcome.",
				},
				[]string{"result"},
			),
			personaFetch: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "friday_persona_fetch_total",
					Help: "Persona fetch attempts by result.",
				},
				[]string{"result"},
			),
			personaApply: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "friday_persona_apply_total",
					Help: "Persona application outcomes by final instruction state.",
				},
				[]string{"state"},
			),
		}
		c.registry.MustRegister(c.transcriptEvents, c.personaFetch, c.personaApply)
		inst = c
	})
	return inst
}

func TranscriptEvent(result string) {
	get().transcriptEvents.WithLabelValues(result).Inc()
}

func PersonaFetch(result string) {
	get().personaFetch.WithLabelValues(result).Inc()
}

func PersonaApply(state string) {
	get().personaApply.WithLabelValues(state).Inc()
}

// Handler exposes the collectors in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(get().registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func Registry() *prometheus.Registry {
	return get().registry
}
