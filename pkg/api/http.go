// Package api exposes the ingestion and read surface of the service over
// HTTP. The pipeline itself has no wire protocol; this is the surrounding
// shell that feeds it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatgraph/pkg/config"
	"chatgraph/pkg/ingest"
	"chatgraph/pkg/logger"
	"chatgraph/pkg/payload"
	"chatgraph/pkg/store"
)

// maxPayloadBytes caps one ingestion body.
const maxPayloadBytes = 8 << 20

// Server bundles the HTTP handlers with their collaborators.
type Server struct {
	pipe    *ingest.Pipeline
	queue   *ingest.Queue
	st      *store.Store
	limiter *limiterPool
	timeout time.Duration
}

// NewServer builds the HTTP layer. queue may be nil to disable async intake.
func NewServer(pipe *ingest.Pipeline, queue *ingest.Queue, st *store.Store, cfg *config.Config) *Server {
	timeout := 10 * time.Second
	if cfg.Ingest.TimeoutMS > 0 {
		timeout = time.Duration(cfg.Ingest.TimeoutMS) * time.Millisecond
	}
	return &Server{
		pipe:    pipe,
		queue:   queue,
		st:      st,
		limiter: newLimiterPool(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		timeout: timeout,
	}
}

// Router wires all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/ingest/{protocol}", s.limiter.limit(s.handleIngest)).Methods(http.MethodPost)
	r.HandleFunc("/v1/object", s.handleObject).Methods(http.MethodGet)
	r.HandleFunc("/v1/days/{date}", s.handleDay).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	protocol := mux.Vars(r)["protocol"]
	if protocol == "" {
		http.Error(w, `{"error":"protocol missing"}`, http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, `{"error":"read body failed"}`, http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("async") == "1" {
		if s.queue == nil {
			http.Error(w, `{"error":"async intake disabled"}`, http.StatusNotImplemented)
			return
		}
		switch err := s.queue.TryEnqueue(protocol, body); {
		case err == nil:
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"queued"}`))
		case errors.Is(err, ingest.ErrQueueFull):
			http.Error(w, `{"error":"queue full"}`, http.StatusTooManyRequests)
		default:
			http.Error(w, `{"error":"queue closed"}`, http.StatusServiceUnavailable)
		}
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	res, err := s.pipe.Ingest(ctx, payload.NewJSONAdapter(protocol), body)
	if err != nil {
		writeIngestError(w, res, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

func writeIngestError(w http.ResponseWriter, res *ingest.Result, err error) {
	status := http.StatusInternalServerError
	var de *payload.DecodeError
	var me *ingest.MalformedPayloadError
	var se *ingest.StorageError
	switch {
	case errors.As(err, &de), errors.As(err, &me):
		status = http.StatusBadRequest
	case errors.As(err, &se):
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error  string         `json:"error"`
		Result *ingest.Result `json:"result,omitempty"`
	}{Error: err.Error(), Result: res})
}

// objectView assembles an entity from its field, counter and set keys.
type objectView struct {
	ID       string              `json:"id"`
	Fields   map[string]string   `json:"fields,omitempty"`
	Counters map[string]string   `json:"counters,omitempty"`
	Sets     map[string][]string `json:"sets,omitempty"`
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	global := r.URL.Query().Get("id")
	if global == "" {
		http.Error(w, `{"error":"id missing"}`, http.StatusBadRequest)
		return
	}
	ok, err := s.st.Exists(store.ObjKey(global))
	if err != nil {
		logger.Error("object_lookup_failed", "id", global, "error", err)
		http.Error(w, `{"error":"lookup failed"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	view := objectView{ID: global, Fields: map[string]string{}, Counters: map[string]string{}, Sets: map[string][]string{}}
	kvs, err := s.st.ScanValues(store.ObjKey(global) + ":")
	if err != nil {
		http.Error(w, `{"error":"scan failed"}`, http.StatusInternalServerError)
		return
	}
	base := store.ObjKey(global) + ":"
	for k, v := range kvs {
		rest := strings.TrimPrefix(k, base)
		switch {
		case strings.HasPrefix(rest, "f:"):
			view.Fields[strings.TrimPrefix(rest, "f:")] = string(v)
		case strings.HasPrefix(rest, "ctr:"):
			view.Counters[strings.TrimPrefix(rest, "ctr:")] = string(v)
		case strings.HasPrefix(rest, "s:"):
			parts := strings.SplitN(strings.TrimPrefix(rest, "s:"), ":", 2)
			if len(parts) == 2 {
				view.Sets[parts[0]] = append(view.Sets[parts[0]], parts[1])
			}
		}
	}
	_ = json.NewEncoder(w).Encode(view)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	date := mux.Vars(r)["date"]
	keys, err := s.st.ScanKeys(store.DayPrefix(date))
	if err != nil {
		http.Error(w, `{"error":"scan failed"}`, http.StatusInternalServerError)
		return
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, store.DayPrefix(date)))
	}
	_ = json.NewEncoder(w).Encode(struct {
		Date    string   `json:"date"`
		Objects []string `json:"objects"`
	}{Date: date, Objects: out})
}
