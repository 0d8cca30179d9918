// Package api exposes the operator endpoint: queue health for the request
// gateway and the analysis queue. The user-facing REST surface lives
// elsewhere and is not part of this service.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"

	"github.com/chainsentry/chainsentry/gateway"
	"github.com/chainsentry/chainsentry/params"
	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

// Server serves /health and /status.
type Server struct {
	store *store.Store
	gw    *gateway.Gateway
	http  *http.Server
}

// StatusResponse is the operator view of both queues.
type StatusResponse struct {
	Version  string               `json:"version"`
	Requests *gateway.Stats       `json:"requests"`
	Jobs     map[types.Status]int `json:"jobs"`
	Time     time.Time            `json:"time"`
}

// New builds the server on the given port.
func New(port int, st *store.Store, gw *gateway.Gateway) *Server {
	s := &Server{store: st, gw: gw}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           cors.Default().Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start() error {
	log.Info("Operator API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the listener down.
func (s *Server) Stop() error {
	return s.http.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": params.Version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqStats, err := s.gw.QueueStats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	jobCounts, err := s.store.JobCounts()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, &StatusResponse{
		Version:  params.Version,
		Requests: reqStats,
		Jobs:     jobCounts,
		Time:     time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to encode response", "err", err)
	}
}
