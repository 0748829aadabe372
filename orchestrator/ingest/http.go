package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/google/uuid"
)

// Gateway serves the intents API over HTTP: submissions in, status out.
// It implements runtime.Service.
type Gateway struct {
	ctx    context.Context
	cancel context.CancelFunc
	svc    *Service
	server *http.Server

	// failed is written by the serve goroutine and read by Status.
	mu     sync.Mutex
	failed error
}

// NewGateway builds the HTTP front for the boundary service.
func NewGateway(ctx context.Context, svc *Service, addr string) *Gateway {
	ctx, cancel := context.WithCancel(ctx)
	g := &Gateway{
		ctx:    ctx,
		cancel: cancel,
		svc:    svc,
	}
	mux := http.NewServeMux()
	prefix := params.KestrelConfig().StatusURLPrefix
	mux.HandleFunc(strings.TrimSuffix(prefix, "/"), g.handleSubmit)
	mux.HandleFunc(prefix, g.handleStatus)
	g.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return g
}

// Start implements runtime.Service.
func (g *Gateway) Start() {
	log.WithField("address", g.server.Addr).Info("Serving intents API")
	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Could not serve intents API")
			g.mu.Lock()
			g.failed = err
			g.mu.Unlock()
		}
	}()
}

// Stop implements runtime.Service.
func (g *Gateway) Stop() error {
	defer g.cancel()
	grace := time.Duration(params.KestrelConfig().ShutdownGraceMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return g.server.Shutdown(ctx)
}

// Status implements runtime.Service.
func (g *Gateway) Status() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}

func (g *Gateway) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	max := int64(params.KestrelConfig().MaxBodyBytes)
	body, err := io.ReadAll(io.LimitReader(r.Body, max+1))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp, reason := g.svc.Submit(r.Context(), body)
	if reason != nil {
		writeEnvelope(w, "", reason)
		return
	}
	status := http.StatusAccepted
	if resp.Decision == DecisionThrottled {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, resp)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, params.KestrelConfig().StatusURLPrefix)
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	resp, reason := g.svc.Status(r.Context(), id)
	if reason != nil {
		writeEnvelope(w, "", reason)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeEnvelope emits the canonical error shape. Rejections that never made
// it to an intent row still get a correlation id for log joins.
func writeEnvelope(w http.ResponseWriter, requestHash string, reason *intent.Reason) {
	env := NewEnvelope(uuid.NewString(), requestHash, "", reason)
	writeJSON(w, reason.HTTPStatus(), env)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Could not write response body")
	}
}
