package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/icad/internal/inspection"
	"github.com/fentz26/icad/internal/models"
	"github.com/fentz26/icad/internal/scheduler"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxBodyBytes     = 1 << 20
)

// Server provides the HTTP API for icad.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
	logger  *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		addr:    addr,
		logger:  logger.Named("http"),
	}
}

// Handler returns the traced route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Event endpoints
	mux.HandleFunc("/events/ica-result", s.handleICAResult)

	// Cassette endpoints
	mux.HandleFunc("/cassettes/", s.handleCassetteByID)

	// Mode endpoints
	mux.HandleFunc("/modes/", s.handleMode)

	// Alarm endpoints
	mux.HandleFunc("/alarms", s.handleAlarms)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	return otelhttp.NewHandler(mux, "icad",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("starting icad api", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleICAResult handles POST /events/ica-result
func (s *Server) handleICAResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev inspection.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	reply, err := s.service.SubmitResult(r.Context(), ev)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, scheduler.ErrPoolStopped), errors.Is(err, ErrSchedulerDisabled):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			status = http.StatusGatewayTimeout
		}
		s.logger.Warn("submit ica result failed", zap.String("tid", ev.TID), zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}

	// Business rejections are carried in return_code, not the HTTP status.
	writeJSON(w, http.StatusOK, reply)
}

// handleCassetteByID handles /cassettes/{id} and /cassettes/{id}/transactions
func (s *Server) handleCassetteByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/cassettes/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "cassette id required", http.StatusBadRequest)
		return
	}

	cstID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getCassette(w, r, cstID)
	case action == "transactions" && r.Method == http.MethodGet:
		s.getTransactions(w, r, cstID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) getCassette(w http.ResponseWriter, r *http.Request, cstID string) {
	c, err := s.service.GetCassette(r.Context(), cstID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrCassetteNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) getTransactions(w http.ResponseWriter, r *http.Request, cstID string) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txs, err := s.service.CassetteTransactions(r.Context(), cstID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

type modeResponse struct {
	Domain string      `json:"domain"`
	Mode   models.Mode `json:"mode"`
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

// handleMode handles GET and PUT /modes/{domain}
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	domain := strings.Trim(strings.TrimPrefix(r.URL.Path, "/modes/"), "/")
	if domain == "" || strings.Contains(domain, "/") {
		http.Error(w, "mode domain required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		mode, err := s.service.Mode(r.Context(), domain)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, modeResponse{Domain: domain, Mode: mode})

	case http.MethodPut:
		var req setModeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		mode, err := s.service.SetMode(r.Context(), domain, req.Mode)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrInvalidMode) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, modeResponse{Domain: domain, Mode: mode})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAlarms handles GET /alarms
func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	alarms, err := s.service.Alarms(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if alarms == nil {
		alarms = []models.Alarm{}
	}
	writeJSON(w, http.StatusOK, alarms)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := s.service.Health(r.Context())
	status := http.StatusOK
	if !h.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
