// Package debugserver exposes a read-only JSON introspection surface
// over one open buffer: its store epoch, segment residency and hot
// set.
//
// Grounded on internal/server/server.go's grpcServer, which wraps one
// CommitLog behind a Config and registers its methods on a
// google.golang.org/grpc server. The generated api/v1 protobuf package
// that server depends on was never retrieved into the pack (see
// DESIGN.md), so there is no schema to serve gRPC against; this
// package keeps the same "one handler type wrapping one core object,
// built from a Config" shape but registers plain JSON handlers on a
// github.com/gorilla/mux router instead.
package debugserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kovaxis/gaze/internal/glog"
	"github.com/kovaxis/gaze/internal/sparsestore"
)

// BufferView is the subset of *buffer.Buffer the debug server reads.
// Restated as an interface, same seam as internal/buffer's own
// Store/Tree interfaces, so tests can inject a fake instead of a real
// Buffer.
type BufferView interface {
	PollEpoch() uint64
	DocLength() int64
	Stats() sparsestore.Stats
	LastIoError() error
}

// Config binds a Server to the buffer it introspects.
type Config struct {
	ID     string
	Buffer BufferView
}

// Server is the debug/introspection HTTP surface (spec.md §6's
// reference client needs somewhere to ask "what's resident, what
// epoch, what's hot" without going through the editor command path).
type Server struct {
	*Config
	httpSrv *http.Server
	log     interface {
		Infof(format string, args ...any)
	}
}

// New builds a Server from a Config. Mirrors
// internal/server.NewGRPCServer's shape: construct the handler,
// register routes, hand back something ready to serve.
func New(cfg *Config) *Server {
	return &Server{
		Config: cfg,
		log:    glog.ForBuffer(cfg.ID),
	}
}

// Router builds the mux.Router serving this buffer's introspection
// routes. Exposed separately from ListenAndServe so tests can drive
// it with httptest.NewServer without binding a real port.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/epoch", s.handleEpoch).Methods(http.MethodGet)
	r.HandleFunc("/segments", s.handleSegments).Methods(http.MethodGet)
	r.HandleFunc("/hotset", s.handleHotSet).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

// ListenAndServe starts serving the introspection routes on addr; it
// blocks until the server is closed, same calling convention as
// http.Server.ListenAndServe.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Router()}
	s.log.Infof("debug server listening on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Close shuts the server down, if it was ever started.
func (s *Server) Close() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

type epochResponse struct {
	BufferID string `json:"buffer_id"`
	Epoch    uint64 `json:"epoch"`
}

func (s *Server) handleEpoch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, epochResponse{BufferID: s.ID, Epoch: s.Buffer.PollEpoch()})
}

type segmentsResponse struct {
	BufferID      string                    `json:"buffer_id"`
	DocLength     int64                     `json:"doc_length"`
	ResidentBytes int64                     `json:"resident_bytes"`
	BudgetBytes   int64                     `json:"budget_bytes"`
	Segments      []sparsestore.SegmentInfo `json:"segments"`
	FailedRanges  []sparsestore.Range       `json:"failed_ranges"`
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	stats := s.Buffer.Stats()
	writeJSON(w, segmentsResponse{
		BufferID:      s.ID,
		DocLength:     s.Buffer.DocLength(),
		ResidentBytes: stats.ResidentBytes,
		BudgetBytes:   stats.BudgetBytes,
		Segments:      stats.Segments,
		FailedRanges:  stats.FailedRanges,
	})
}

type hotSetResponse struct {
	BufferID string                     `json:"buffer_id"`
	HotSet   []sparsestore.HotRangeInfo `json:"hot_set"`
}

func (s *Server) handleHotSet(w http.ResponseWriter, r *http.Request) {
	stats := s.Buffer.Stats()
	writeJSON(w, hotSetResponse{BufferID: s.ID, HotSet: stats.HotSet})
}

type healthResponse struct {
	BufferID string `json:"buffer_id"`
	IoError  string `json:"io_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{BufferID: s.ID}
	if err := s.Buffer.LastIoError(); err != nil {
		resp.IoError = err.Error()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
