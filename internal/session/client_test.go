package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/klaxon/internal/alarm"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, defaultServer, u.Host)

	u, err = parseBaseURL("https://nms.example.com:8443/ui?x=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "https://nms.example.com:8443", u.String())
}

type recorded struct {
	mu     sync.Mutex
	bodies map[string][]byte
}

func (r *recorded) put(path string, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies[path] = body
}

func (r *recorded) get(path string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[path]
}

func newTestServer(t *testing.T) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{bodies: map[string][]byte{}}
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	readBody := func(r *http.Request) {
		var raw json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		rec.put(r.URL.Path, raw)
	}
	mux.HandleFunc("GET /api/alarms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, AlarmListResponse{Alarms: []alarm.Alarm{
			{ID: 1, State: alarm.StateOutstanding, Severity: alarm.SeverityMajor, Message: "link down"},
			{ID: 2, State: alarm.StateResolved, Severity: alarm.SeverityMinor},
		}})
	})
	mux.HandleFunc("POST /api/alarms/{id}/acknowledge", func(w http.ResponseWriter, r *http.Request) {
		readBody(r)
		if r.PathValue("id") == "404" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/alarms/resolve", func(w http.ResponseWriter, r *http.Request) {
		readBody(r)
		writeJSON(w, BulkResponse{Failures: map[int64]int{3: 19}})
	})
	mux.HandleFunc("POST /api/alarms/terminate", func(w http.ResponseWriter, r *http.Request) {
		readBody(r)
		writeJSON(w, map[string]any{})
	})
	mux.HandleFunc("GET /api/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "major.wav" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("RIFF"))
	})
	mux.HandleFunc("GET /api/server", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alarmListDisplayLimit":4096,"minViewRefreshInterval":1500,"strictAlarmStatusFlow":true,"timedAlarmAckEnabled":true}`))
	})
	mux.HandleFunc("GET /api/objects", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"objects":[{"id":1,"name":"Entire Network"},{"id":10,"name":"core-sw","parents":[1]}],"zones":[{"uin":4,"name":"DMZ"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestClient_Endpoints(t *testing.T) {
	srv, rec := newTestServer(t)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	alarms, err := c.GetAlarms(ctx)
	require.NoError(t, err)
	require.Len(t, alarms, 2)
	assert.Equal(t, "link down", alarms[0].Message)

	require.NoError(t, c.Acknowledge(ctx, 7, true, 4*time.Hour))
	assert.JSONEq(t, `{"sticky":true,"timeout":14400}`, string(rec.get("/api/alarms/7/acknowledge")))

	err = c.Acknowledge(ctx, 404, false, 0)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	failures, err := c.ResolveAlarms(ctx, []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{3: 19}, failures)
	assert.JSONEq(t, `{"ids":[1,3]}`, string(rec.get("/api/alarms/resolve")))

	failures, err = c.TerminateAlarms(ctx, []int64{5})
	require.NoError(t, err)
	assert.Empty(t, failures)

	data, err := c.DownloadFile(ctx, "major.wav")
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))

	_, err = c.DownloadFile(ctx, "warning.wav")
	assert.ErrorIs(t, err, ErrNotFound)

	info, err := c.ServerInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4096, info.AlarmListDisplayLimit)
	assert.Equal(t, 1500*time.Millisecond, info.MinViewRefreshInterval())
	assert.True(t, info.StrictAlarmStatusFlow)

	tree, err := c.ObjectTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree.Objects, 2)
	assert.Equal(t, []int64{1}, tree.Objects[1].Parents)
	assert.Equal(t, "DMZ", tree.Zones[0].Name)
}

func TestClient_ServerDown(t *testing.T) {
	srv, _ := newTestServer(t)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	srv.Close()

	_, err = c.GetAlarms(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get alarms")
}

func TestFrame_Notification(t *testing.T) {
	a := alarm.Alarm{ID: 9, Severity: alarm.SeverityCritical}
	n, err := FrameFor(alarm.Notification{Kind: alarm.KindNewAlarm, Alarm: a}).Notification()
	require.NoError(t, err)
	assert.Equal(t, alarm.KindNewAlarm, n.Kind)
	assert.Equal(t, int64(9), n.Alarm.ID)

	_, err = Frame{Code: "bulk_resolved"}.Notification()
	assert.Error(t, err)
	_, err = Frame{Code: "alarm_changed"}.Notification()
	assert.Error(t, err)
	_, err = Frame{Code: "reboot"}.Notification()
	assert.Error(t, err)
}
