// Package api serves a small read-only view of runs and stored listings, and
// accepts commands for the daemon.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"estate_scrooper/models"
	"estate_scrooper/storage"
)

// RunStore is the operational store behind the run and command endpoints.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error)
	ListLogs(ctx context.Context, runID uuid.UUID) ([]models.ScrapeLog, error)
	CreateCommand(cmd models.CommandType, params *models.CommandParams) (int64, error)
}

type StatusFunc func() ([]byte, error)

type Handler struct {
	runs     RunStore
	listings storage.ListingStore
	status   StatusFunc
}

func NewHandler(runs RunStore, listings storage.ListingStore, status StatusFunc) *Handler {
	return &Handler{runs: runs, listings: listings, status: status}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/runs", h.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/logs", h.handleRunLogs).Methods(http.MethodGet)
	r.HandleFunc("/listings", h.handleListings).Methods(http.MethodGet)
	r.HandleFunc("/commands", h.handleCommand).Methods(http.MethodPost)
	return r
}

// Serve runs the API until ctx is cancelled.
func Serve(ctx context.Context, addr string, h *Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("API listening on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	body, err := h.status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRuns(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.ScrapeRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	logs, err := h.runs.ListLogs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []models.ScrapeLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleListings(w http.ResponseWriter, r *http.Request) {
	filter := storage.ListingFilter{
		City:   r.URL.Query().Get("city"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	listings, err := h.listings.ListListings(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

type commandRequest struct {
	Command models.CommandType `json:"command"`
	Site    string             `json:"site,omitempty"`
	City    string             `json:"city,omitempty"`
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Command.Valid() {
		writeError(w, http.StatusBadRequest, "unknown command")
		return
	}

	id, err := h.runs.CreateCommand(req.Command, &models.CommandParams{Site: req.Site, City: req.City})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "command": req.Command})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
