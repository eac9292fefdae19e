package alert_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollward-systems/rollward/internal/alert"
	"github.com/rollward-systems/rollward/pkg/types"
)

func testAlert() types.Alert {
	return types.Alert{
		Level:       types.AlertLevelWarning,
		Category:    "trigger_fired",
		Trigger:     "success-rate-low",
		ExecutionID: "exec-1",
		Message:     "Trigger success-rate-low fired",
		Timestamp:   time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := alert.NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Send(testAlert()))
	require.NoError(t, sink.Send(testAlert()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var count int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got types.Alert
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &got))
		assert.Equal(t, "success-rate-low", got.Trigger)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestWebhookSinkPostsAlert(t *testing.T) {
	var received types.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := alert.NewWebhookSink(srv.URL)
	require.NoError(t, sink.Send(testAlert()))
	assert.Equal(t, "exec-1", received.ExecutionID)
}

func TestWebhookSinkReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := alert.NewWebhookSink(srv.URL)
	assert.Error(t, sink.Send(testAlert()))
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	dispatcher, err := alert.NewDispatcher([]types.AlertConfig{
		{Type: types.AlertFile, Path: path},
	}, nil)
	require.NoError(t, err)

	dispatcher.AlertFunc()(testAlert())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "success-rate-low")
}

func TestDispatcherRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.AlertConfig
	}{
		{name: "webhook without url", cfg: types.AlertConfig{Type: types.AlertWebhook}},
		{name: "file without path", cfg: types.AlertConfig{Type: types.AlertFile}},
		{name: "sns without topic", cfg: types.AlertConfig{Type: types.AlertSNS}},
		{name: "unknown type", cfg: types.AlertConfig{Type: "pager"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := alert.NewDispatcher([]types.AlertConfig{tt.cfg}, nil)
			assert.Error(t, err)
		})
	}
}
