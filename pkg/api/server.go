package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cuemby/ballast/pkg/balancer"
	"github.com/cuemby/ballast/pkg/events"
	"github.com/cuemby/ballast/pkg/log"
	"github.com/cuemby/ballast/pkg/metrics"
	"github.com/cuemby/ballast/pkg/storage"
)

// Server exposes the balancer worker over HTTP
type Server struct {
	worker   *balancer.Worker
	store    storage.Store
	eventLog *events.Log
	router   *mux.Router
	logger   zerolog.Logger
}

// SubmitRequest is the body of a plan submission
type SubmitRequest struct {
	PlanID  string `json:"planId"`
	Version int64  `json:"version"`
	Plan    string `json:"plan"`
	Force   bool   `json:"force,omitempty"`
}

// BandwidthResponse carries the node-default bandwidth ceiling
type BandwidthResponse struct {
	BandwidthMBs int64 `json:"bandwidthMBs"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewServer creates the admin API server. The store and event log are
// optional; without them the history and events endpoints report empty
// lists.
func NewServer(worker *balancer.Worker, store storage.Store, eventLog *events.Log) *Server {
	s := &Server{
		worker:   worker,
		store:    store,
		eventLog: eventLog,
		router:   mux.NewRouter(),
		logger:   log.WithComponent("api"),
	}

	s.router.HandleFunc("/v1/plans", s.submitPlan).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/plans/current", s.queryStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/plans/{id}", s.cancelPlan).Methods(http.MethodDelete)
	s.router.HandleFunc("/v1/volumes", s.volumeNames).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/bandwidth", s.bandwidth).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/history", s.history).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/events", s.events).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return s
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the admin HTTP server
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("admin API listening")
	return server.ListenAndServe()
}

func (s *Server) submitPlan(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, string(balancer.CodeInvalidPlan), "request body does not parse")
		return
	}

	if err := s.worker.SubmitPlan(req.PlanID, req.Version, req.Plan, req.Force); err != nil {
		s.writeBalancerError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"planId": req.PlanID})
}

func (s *Server) queryStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.worker.QueryWorkStatus()
	if err != nil {
		s.writeBalancerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) cancelPlan(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["id"]
	if err := s.worker.CancelPlan(planID); err != nil {
		s.writeBalancerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"planId": planID})
}

func (s *Server) volumeNames(w http.ResponseWriter, r *http.Request) {
	names, err := s.worker.GetVolumeNames()
	if err != nil {
		s.writeBalancerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) bandwidth(w http.ResponseWriter, r *http.Request) {
	bw, err := s.worker.GetBandwidth()
	if err != nil {
		s.writeBalancerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BandwidthResponse{BandwidthMBs: bw})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}

	records, err := s.store.ListPlans()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, string(balancer.CodeInternalError), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// events serves the retained tail of the balancer's event log
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.eventLog.Recent())
}

// health implements the liveness endpoint
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// writeBalancerError maps a worker error to its HTTP status
func (s *Server) writeBalancerError(w http.ResponseWriter, err error) {
	code := balancer.CodeOf(err)

	status := http.StatusBadRequest
	switch code {
	case balancer.CodeNotEnabled:
		status = http.StatusForbidden
	case balancer.CodePlanAlreadyInProgress:
		status = http.StatusConflict
	case balancer.CodeNoSuchPlan:
		status = http.StatusNotFound
	case balancer.CodeInternalError, "":
		status = http.StatusInternalServerError
	}

	s.writeError(w, status, string(code), err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
