package metrics

import (
	"bytes"
	"io"
	"time"

	"github.com/Wyydra/rendezvous/internal/core/port"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"
)

// Metrics backs port.Metrics with go-metrics counters.
type Metrics struct {
	reg gometrics.Registry
}

var _ port.Metrics = (*Metrics)(nil)

func New() *Metrics {
	return &Metrics{reg: gometrics.NewRegistry()}
}

func (m *Metrics) Registry() gometrics.Registry {
	return m.reg
}

func (m *Metrics) Incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(i)
}

func (m *Metrics) Decr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Dec(i)
}

func (m *Metrics) Count(name string) int64 {
	return gometrics.GetOrRegisterCounter(name, m.reg).Count()
}

// WriteJSON writes one snapshot of every metric.
func (m *Metrics) WriteJSON(w io.Writer) {
	gometrics.WriteJSONOnce(m.reg, w)
}

// Report logs a snapshot every interval until stop is closed.
func (m *Metrics) Report(log zerolog.Logger, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var buf bytes.Buffer
			m.WriteJSON(&buf)
			if buf.Len() == 0 {
				continue
			}
			log.Info().RawJSON("metrics", bytes.TrimSpace(buf.Bytes())).Msg("Metrics")
		}
	}
}
