package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Incr("peers", 3)
	m.Decr("peers", 1)
	m.Incr("rooms", 1)

	assert.Equal(t, int64(2), m.Count("peers"))
	assert.Equal(t, int64(1), m.Count("rooms"))
	assert.Equal(t, int64(0), m.Count("unknown"))
}

func TestWriteJSON(t *testing.T) {
	m := New()
	m.Incr("messages.routed", 4)

	var buf bytes.Buffer
	m.WriteJSON(&buf)

	var snapshot map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snapshot))
	assert.Equal(t, float64(4), snapshot["messages.routed"]["count"])
}

func TestReport(t *testing.T) {
	m := New()
	m.Incr("rooms", 1)

	var buf syncBuffer
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.Report(zerolog.New(&buf), 5*time.Millisecond, stop)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte(`"metrics":{`))
	}, time.Second, 5*time.Millisecond)
	close(stop)
	<-done

	line, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	var entry struct {
		Message string                    `json:"message"`
		Metrics map[string]map[string]any `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(line, &entry))
	assert.Equal(t, "Metrics", entry.Message)
	assert.Equal(t, float64(1), entry.Metrics["rooms"]["count"])
}

func TestReportDisabled(t *testing.T) {
	// returns immediately without a stop signal
	New().Report(zerolog.Nop(), 0, nil)
}
