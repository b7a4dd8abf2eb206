package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/client"
	"github.com/darkace1998/FlowSentry/internal/config"
	"github.com/darkace1998/FlowSentry/internal/logging"
	"github.com/darkace1998/FlowSentry/internal/model"
	"github.com/darkace1998/FlowSentry/internal/session"
	"github.com/darkace1998/FlowSentry/internal/storage"
)

func makeTestFlow(id int64, src string, srcPort int, dst string, dstPort int, proto string) model.FlowRecord {
	return model.FlowRecord{
		FlowID:         id,
		Src:            src,
		SrcPort:        srcPort,
		Dest:           dst,
		DestPort:       dstPort,
		Protocol:       proto,
		FlowDuration:   12.5,
		Classification: model.ClassBenign,
		Probability:    0.1,
		Risk:           model.RiskLow,
		FlowStartTime:  "2024-03-01 12:00:00",
		FlowLastSeen:   "2024-03-01 12:00:05",
	}
}

// fakeActions mimics the scheduler: failures are recorded on the session.
type fakeActions struct {
	sess  *session.Session
	err   error
	calls []string
}

func (a *fakeActions) Refresh(ctx context.Context) error {
	a.calls = append(a.calls, "refresh")
	if a.err != nil {
		a.sess.ApplyRefresh(nil, a.err)
	}
	return a.err
}

func (a *fakeActions) StartCapture(ctx context.Context) error {
	a.calls = append(a.calls, "start")
	a.sess.ApplyCapture(true, a.err)
	return a.err
}

func (a *fakeActions) StopCapture(ctx context.Context) error {
	a.calls = append(a.calls, "stop")
	a.sess.ApplyCapture(false, a.err)
	return a.err
}

type testEnv struct {
	srv     *Server
	sess    *session.Session
	board   *analysis.AlertBoard
	actions *fakeActions
}

func newTestServer(t *testing.T, cfg config.WebConfig) *testEnv {
	t.Helper()
	board := analysis.NewAlertBoard()
	det := analysis.NewDetector(10,
		analysis.WithRand(func() float64 { return 0.5 }),
		analysis.WithAlerter(board))
	sess := session.New(storage.NewFlowStore(det))
	acts := &fakeActions{sess: sess}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "flowsentry_flows_stored 0")
	})
	return &testEnv{
		srv:     NewServer(cfg, sess, acts, board, metrics),
		sess:    sess,
		board:   board,
		actions: acts,
	}
}

func (e *testEnv) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	e.srv.Mux().ServeHTTP(w, req)
	return w
}

func sampleFlows() []model.FlowRecord {
	return []model.FlowRecord{
		makeTestFlow(1, "10.0.1.1", 50000, "192.168.1.1", 80, "TCP"),
		makeTestFlow(2, "10.0.1.2", 50001, "192.168.1.1", 443, "TCP"),
		makeTestFlow(3, "10.0.1.1", 50002, "192.168.1.2", 53, "UDP"),
		makeTestFlow(4, "10.0.1.1", 50003, "192.168.1.1", 80, "TCP"),
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
}

func TestFlows_NoFilters(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	w := env.do("GET", "/api/flows")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp FlowsResponse
	decode(t, w, &resp)
	if resp.Total != 4 || resp.Shown != 4 || len(resp.Flows) != 4 {
		t.Errorf("total/shown/len = %d/%d/%d, want 4/4/4", resp.Total, resp.Shown, len(resp.Flows))
	}
	if resp.Flows[0].FlowID != 1 || resp.Flows[3].FlowID != 4 {
		t.Error("flows should keep store order")
	}
}

func TestFlows_Filtered(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	w := env.do("GET", "/api/flows?Src=10.0.1.1&DestPort=80")
	var resp FlowsResponse
	decode(t, w, &resp)

	if resp.Total != 4 || resp.Shown != 2 {
		t.Errorf("total/shown = %d/%d, want 4/2", resp.Total, resp.Shown)
	}
	for _, f := range resp.Flows {
		if f.Src != "10.0.1.1" || f.DestPort != 80 {
			t.Errorf("flow %d does not match filters", f.FlowID)
		}
	}
	if resp.Filters["Src"] != "10.0.1.1" || resp.Filters["DestPort"] != "80" {
		t.Errorf("filters echo = %v", resp.Filters)
	}
}

func TestFlows_EmptyValueFilter(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	flows := sampleFlows()
	flows[1].Classification = ""
	env.sess.ApplyInitialLoad(flows, nil)

	var resp FlowsResponse
	decode(t, env.do("GET", "/api/flows?Classification="), &resp)
	if resp.Shown != 1 || len(resp.Flows) != 1 || resp.Flows[0].FlowID != 2 {
		t.Errorf("shown = %d flows = %+v, want only flow 2", resp.Shown, resp.Flows)
	}

	var unfiltered FlowsResponse
	decode(t, env.do("GET", "/api/flows"), &unfiltered)
	if unfiltered.Shown != 4 {
		t.Errorf("without the parameter shown = %d, want 4", unfiltered.Shown)
	}
}

func TestFlows_BadFilter(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	w := env.do("GET", "/api/flows?DestPort=http")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestFlows_Pagination(t *testing.T) {
	env := newTestServer(t, config.WebConfig{PageSize: 3})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	tests := []struct {
		query    string
		wantPage int
		wantLen  int
	}{
		{"/api/flows", 1, 3},
		{"/api/flows?page=2", 2, 1},
		{"/api/flows?page=99", 2, 1},
		{"/api/flows?page=-1", 1, 3},
	}
	for _, tt := range tests {
		var resp FlowsResponse
		decode(t, env.do("GET", tt.query), &resp)
		if resp.Page != tt.wantPage || len(resp.Flows) != tt.wantLen || resp.TotalPages != 2 {
			t.Errorf("%s: page=%d len=%d pages=%d, want %d/%d/2",
				tt.query, resp.Page, len(resp.Flows), resp.TotalPages, tt.wantPage, tt.wantLen)
		}
		if resp.Shown != 4 {
			t.Errorf("%s: shown = %d, want 4", tt.query, resp.Shown)
		}
	}
}

func TestFlowDetail(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	w := env.do("GET", "/api/flows/3")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var f model.FlowRecord
	decode(t, w, &f)
	if f.FlowID != 3 || f.Protocol != "UDP" {
		t.Errorf("unexpected flow %+v", f)
	}

	if w := env.do("GET", "/api/flows/999"); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestFacet(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	w := env.do("GET", "/api/facets/DestPort")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Field  string `json:"field"`
		Values []int  `json:"values"`
	}
	decode(t, w, &resp)
	want := []int{53, 80, 443}
	if resp.Field != "DestPort" || fmt.Sprint(resp.Values) != fmt.Sprint(want) {
		t.Errorf("facet = %+v, want DestPort %v", resp, want)
	}

	if w := env.do("GET", "/api/facets/Bytes"); w.Code != http.StatusNotFound {
		t.Errorf("unknown field status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAllFacets(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	var resp map[string][]interface{}
	decode(t, env.do("GET", "/api/facets"), &resp)
	if len(resp) != 7 {
		t.Errorf("got %d fields, want 7", len(resp))
	}
	if len(resp["Protocol"]) != 2 {
		t.Errorf("Protocol values = %v", resp["Protocol"])
	}
}

func TestStatus(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})

	var before map[string]interface{}
	decode(t, env.do("GET", "/api/status"), &before)
	if before["initialLoad"] != true || before["status"] != nil {
		t.Errorf("initial status = %v", before)
	}

	env.sess.ApplyStatus(model.ApiStatus{Status: "online", FlowsProcessed: 9, ActiveFlows: 2}, nil)
	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	var after struct {
		Status      *model.ApiStatus `json:"status"`
		IsSniffing  bool             `json:"isSniffing"`
		Error       string           `json:"error"`
		InitialLoad bool             `json:"initialLoad"`
		FlowCount   int              `json:"flowCount"`
	}
	decode(t, env.do("GET", "/api/status"), &after)
	if after.Status == nil || after.Status.FlowsProcessed != 9 {
		t.Errorf("status = %+v", after.Status)
	}
	if after.InitialLoad || after.FlowCount != 4 || after.Error != "" {
		t.Errorf("unexpected snapshot %+v", after)
	}
}

func TestActions(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})

	for _, path := range []string{"/api/refresh", "/api/capture/start", "/api/capture/stop"} {
		if w := env.do("POST", path); w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
	if got := strings.Join(env.actions.calls, ","); got != "refresh,start,stop" {
		t.Errorf("calls = %s", got)
	}

	if w := env.do("GET", "/api/refresh"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/refresh status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestActions_Failure(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.actions.err = errors.New("connection refused")

	w := env.do("POST", "/api/capture/start")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["error"] != session.ErrStartCapture {
		t.Errorf("error = %q, want %q", resp["error"], session.ErrStartCapture)
	}
	if env.sess.Snapshot().IsSniffing {
		t.Error("failed start must not set isSniffing")
	}
}

func TestAlerts(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})

	var batch []model.FlowRecord
	for i := int64(1); i <= 10; i++ {
		batch = append(batch, makeTestFlow(i, "10.9.9.9", 40000+int(i), "192.168.1.1", 80, "TCP"))
	}
	env.sess.ApplyInitialLoad(batch, nil)

	var alerts []analysis.Alert
	decode(t, env.do("GET", "/api/alerts"), &alerts)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].ID != analysis.DoSAlertID || !strings.Contains(alerts[0].Message, "10.9.9.9") {
		t.Errorf("unexpected alert %+v", alerts[0])
	}
	if alerts[0].Count != 1 {
		t.Errorf("Count = %d, want 1 raise for one flagged group", alerts[0].Count)
	}

	if w := env.do("DELETE", "/api/alerts/alert"); w.Code != http.StatusNoContent {
		t.Errorf("dismiss status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w := env.do("DELETE", "/api/alerts/alert"); w.Code != http.StatusNotFound {
		t.Errorf("second dismiss status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestIPStats(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	var st model.IPStats
	decode(t, env.do("GET", "/api/ip-stats?top=1"), &st)
	if len(st.IPAddresses) != 1 || st.IPAddresses[0] != "10.0.1.1" || st.Counts[0] != 3 {
		t.Errorf("ip stats = %+v", st)
	}

	if w := env.do("GET", "/api/ip-stats?top=x"); w.Code != http.StatusBadRequest {
		t.Errorf("bad top status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

type fakeIPStats struct {
	stats model.IPStats
	err   error
	calls int
}

func (f *fakeIPStats) FetchIPStats(ctx context.Context) (model.IPStats, error) {
	f.calls++
	return f.stats, f.err
}

func TestIPStats_FromBackend(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)
	src := &fakeIPStats{stats: model.IPStats{
		IPAddresses: []string{"172.16.0.2", "172.16.0.1", "172.16.0.3"},
		Counts:      []int{5, 40, 1},
	}}
	env.srv.SetIPStatsSource(src)

	w := env.do("GET", "/api/ip-stats?top=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get(ipStatsSourceHeader); got != "backend" {
		t.Errorf("source header = %q, want backend", got)
	}
	var st model.IPStats
	decode(t, w, &st)
	if len(st.IPAddresses) != 2 || st.IPAddresses[0] != "172.16.0.1" || st.Counts[0] != 40 ||
		st.IPAddresses[1] != "172.16.0.2" {
		t.Errorf("ip stats = %+v, want backend histogram ranked and cut to 2", st)
	}
	if src.calls != 1 {
		t.Errorf("backend called %d times, want 1", src.calls)
	}
}

func TestIPStats_BackendFailureFallsBackToLocal(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.sess.ApplyInitialLoad(sampleFlows(), nil)
	env.srv.SetIPStatsSource(&fakeIPStats{
		err: &client.FetchError{Op: "GET /ip-stats", Status: http.StatusNotFound, Err: errors.New("not found")},
	})

	w := env.do("GET", "/api/ip-stats?top=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get(ipStatsSourceHeader); got != "local" {
		t.Errorf("source header = %q, want local", got)
	}
	var st model.IPStats
	decode(t, w, &st)
	if len(st.IPAddresses) != 1 || st.IPAddresses[0] != "10.0.1.1" || st.Counts[0] != 3 {
		t.Errorf("ip stats = %+v, want local histogram", st)
	}
}

func TestAbout(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	env.srv.SetAboutInfo(config.Defaults(), "1.2.3", time.Now().Add(-time.Minute))

	var info AboutInfo
	decode(t, env.do("GET", "/api/about"), &info)
	if info.Version != "1.2.3" || info.Backend != "http://localhost:5000/api" || info.DoSThreshold != 10 {
		t.Errorf("about = %+v", info)
	}
}

func TestLogLevel(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	orig := logging.Default().Level()
	defer logging.Default().SetLevel(orig)

	w := env.do("POST", "/debug/log-level?level=debug")
	if !strings.Contains(w.Body.String(), "DEBUG") {
		t.Errorf("body = %q", w.Body.String())
	}
	if logging.Default().Level() != logging.DEBUG {
		t.Error("level was not changed")
	}

	w = env.do("GET", "/debug/log-level")
	if !strings.Contains(w.Body.String(), "current log level: DEBUG") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestMetricsMounted(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	w := env.do("GET", "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "flowsentry_flows_stored") {
		t.Errorf("metrics: %d %q", w.Code, w.Body.String())
	}
}

func TestWebSocket_ChangeFeed(t *testing.T) {
	env := newTestServer(t, config.WebConfig{})
	ts := httptest.NewServer(env.srv.Mux())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello session.Change
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != session.ChangeStatus || hello.Version != 0 {
		t.Errorf("hello = %+v", hello)
	}

	env.sess.ApplyInitialLoad(sampleFlows(), nil)

	var c session.Change
	if err := conn.ReadJSON(&c); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if c.Type != session.ChangeFlows || c.Version != 1 {
		t.Errorf("change = %+v, want flows/1", c)
	}

	env.sess.Close()
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
