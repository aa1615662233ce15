package api

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatgraph/pkg/config"
	"chatgraph/pkg/ingest"
	"chatgraph/pkg/models"
	"chatgraph/pkg/objid"
	"chatgraph/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	pipe := ingest.New(st)
	return NewServer(pipe, ingest.NewQueue(8), st, &config.Config{}), st
}

func encodeBody(t *testing.T, content string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func messageBody(t *testing.T) []byte {
	return []byte(fmt.Sprintf(`{
		"data": %q,
		"meta": {
			"id": "m1",
			"date": {"timestamp": 1700000000},
			"chat": {"id": "c1", "name": "general"},
			"sender": {"id": "u1"}
		}
	}`, encodeBody(t, "hi")))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIngestSync(t *testing.T) {
	srv, st := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest/telegram", bytes.NewReader(messageBody(t)))
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res ingest.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.State != ingest.StateDone {
		t.Fatalf("state = %s", res.State)
	}
	if len(res.Delta) == 0 {
		t.Fatalf("expected a non-empty delta")
	}

	inst := objid.ChatInstanceID("telegram", "", "")
	chatRef := models.ObjRef{Kind: models.KindChat, Subtype: inst, ID: "c1"}
	ok, err := st.Exists(store.ObjKey(chatRef.Global()))
	if err != nil || !ok {
		t.Fatalf("chat entity missing: ok=%v err=%v", ok, err)
	}
}

func TestIngestSyncMalformed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest/telegram", bytes.NewReader([]byte(`{"meta": {}}`)))
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIngestAsyncAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest/telegram?async=1", bytes.NewReader(messageBody(t)))
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}

func TestIngestAsyncDisabled(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	srv := NewServer(ingest.New(st), nil, st, &config.Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest/telegram?async=1", bytes.NewReader(messageBody(t)))
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestObjectRead(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := httptest.NewRecorder()
	srv.Router().ServeHTTP(ing, httptest.NewRequest(http.MethodPost, "/v1/ingest/telegram", bytes.NewReader(messageBody(t))))
	if ing.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", ing.Code)
	}

	inst := objid.ChatInstanceID("telegram", "", "")
	chatRef := models.ObjRef{Kind: models.KindChat, Subtype: inst, ID: "c1"}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/object?id="+chatRef.Global(), nil)
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var view struct {
		ID     string              `json:"id"`
		Fields map[string]string   `json:"fields"`
		Sets   map[string][]string `json:"sets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Fields["name"] != "general" {
		t.Fatalf("chat name missing from view: %+v", view)
	}
	if len(view.Sets["days"]) != 1 || view.Sets["days"][0] != "20231114" {
		t.Fatalf("days set wrong: %+v", view.Sets)
	}
}

func TestObjectNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/object?id=chat:x:y", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDayRead(t *testing.T) {
	srv, _ := newTestServer(t)
	ing := httptest.NewRecorder()
	srv.Router().ServeHTTP(ing, httptest.NewRequest(http.MethodPost, "/v1/ingest/telegram", bytes.NewReader(messageBody(t))))
	if ing.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", ing.Code)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/days/20231114", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Date    string   `json:"date"`
		Objects []string `json:"objects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Objects) == 0 {
		t.Fatalf("expected active objects on the day")
	}
	inst := objid.ChatInstanceID("telegram", "", "")
	want := (models.ObjRef{Kind: models.KindChat, Subtype: inst, ID: "c1"}).Global()
	found := false
	for _, g := range out.Objects {
		if g == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("chat missing from day listing: %v", out.Objects)
	}
}

func TestRateLimiterShedsBursts(t *testing.T) {
	p := newLimiterPool(1, 1)
	if !p.allow("10.1.1.1:555") {
		t.Fatalf("first request must pass")
	}
	if p.allow("10.1.1.1:555") {
		t.Fatalf("burst of one must shed the second request")
	}
	// other clients keep their own bucket
	if !p.allow("10.1.1.2:555") {
		t.Fatalf("separate client must not be affected")
	}
}
