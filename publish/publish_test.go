package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sen44/air"
)

var (
	sampleTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	missing    = float32(math.NaN())
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, sink.PublishState(context.Background(), air.Sample{Field: air.FieldPM2_5, Value: 2.5, Time: sampleTime}))
	require.NoError(t, sink.PublishState(context.Background(), air.Sample{Field: air.FieldVOC, Value: missing, Time: sampleTime}))

	out := buf.String()
	assert.Contains(t, out, "field=pm_2_5 value=2.5")
	assert.Contains(t, out, `field=voc value="no data"`)
}

func TestNewEvent(t *testing.T) {
	data, err := json.Marshal(NewEvent(air.Sample{Field: air.FieldHumidity, Value: missing, Time: sampleTime}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"humidity","value":null,"unit":"%RH","time":"2024-05-01T12:00:00.000Z"}`, string(data))

	data, err = json.Marshal(NewEvent(air.Sample{Field: air.FieldTemperature, Value: 20.5, Time: sampleTime}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"temperature","value":20.5,"unit":"°C","time":"2024-05-01T12:00:00.000Z"}`, string(data))
}

func TestInfluxSink(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		lines = append(lines, strings.TrimSpace(string(body)))
		query = r.URL.RawQuery
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewInfluxSink(InfluxOpts{URL: srv.URL, Token: "t", Org: "home", Bucket: "air", Tags: map[string]string{"room": "kitchen"}})
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	require.NoError(t, sink.PublishState(ctx, air.Sample{Field: air.FieldPM2_5, Value: 2.5, Time: sampleTime}))
	require.NoError(t, sink.PublishState(ctx, air.Sample{Field: air.FieldVOC, Value: missing, Time: sampleTime}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 1, "missing values are not written")
	assert.Equal(t, "sen44,room=kitchen pm_2_5=2.5 1714564800000000000", lines[0])
	assert.Contains(t, query, "bucket=air")
	assert.Contains(t, query, "org=home")
}

func TestInfluxSink_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"unauthorized","message":"unauthorized access"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink, err := NewInfluxSink(InfluxOpts{URL: srv.URL, Bucket: "air"})
	require.NoError(t, err)
	defer sink.Close()

	err = sink.PublishState(context.Background(), air.Sample{Field: air.FieldPM1_0, Value: 1, Time: sampleTime})
	assert.ErrorContains(t, err, "influx: write pm_1_0")
}

func TestNewInfluxSink_Validation(t *testing.T) {
	_, err := NewInfluxSink(InfluxOpts{Bucket: "air"})
	assert.Error(t, err)
	_, err = NewInfluxSink(InfluxOpts{URL: "http://localhost:8086"})
	assert.Error(t, err)
}

func TestSQLiteRecorder(t *testing.T) {
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	defer rec.Close()

	ctx := context.Background()
	for i, v := range []float32{1.5, missing, 3.5} {
		sample := air.Sample{Field: air.FieldPM10_0, Value: v, Time: sampleTime.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, rec.PublishState(ctx, sample))
	}
	require.NoError(t, rec.PublishState(ctx, air.Sample{Field: air.FieldVOC, Value: 100, Time: sampleTime}))

	samples, err := rec.Recent(ctx, air.FieldPM10_0, 10)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, float32(3.5), samples[0].Value)
	assert.Equal(t, sampleTime.Add(2*time.Minute), samples[0].Time)
	assert.True(t, air.IsMissing(samples[1].Value))
	assert.Equal(t, float32(1.5), samples[2].Value)

	samples, err = rec.Recent(ctx, air.FieldPM10_0, 1)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestHub(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.PublishState(context.Background(), air.Sample{Field: air.FieldPM2_5, Value: 2.5, Time: sampleTime}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "pm_2_5", event.Field)
	require.NotNil(t, event.Value)
	assert.Equal(t, float32(2.5), *event.Value)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}
