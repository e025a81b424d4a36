// Package api exposes the scheduler operations to the UI layer over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/ylchen87/PillTrack/internal/models"
	"github.com/ylchen87/PillTrack/internal/notify"
	"github.com/ylchen87/PillTrack/internal/scheduler"
)

type Server struct {
	coordinator *scheduler.Coordinator
	router      chi.Router
}

func NewServer(coordinator *scheduler.Coordinator) *Server {
	s := &Server{coordinator: coordinator}

	router := chi.NewRouter()
	router.Use(middleware.Logger)

	router.Post("/reminders", s.createReminder)
	router.Get("/reminders", s.listReminders)
	router.Get("/reminders/{id}", s.getReminder)
	router.Put("/reminders/{id}", s.editReminder)
	router.Delete("/reminders/{id}", s.deleteReminder)
	router.Put("/reminders/{id}/enabled", s.setEnabled)
	router.Post("/actions", s.processAction)
	router.Get("/adherence", s.getAdherence)
	router.Get("/history", s.listHistory)
	router.Delete("/history", s.purgeHistory)

	s.router = router
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) createReminder(w http.ResponseWriter, r *http.Request) {
	reminder := &models.Reminder{}
	if err := json.NewDecoder(r.Body).Decode(reminder); err != nil {
		http.Error(w, "Error parsing request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.coordinator.CreateReminder(r.Context(), reminder); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reminder)
}

func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := queryInt64(w, r, "owner_id")
	if !ok {
		return
	}
	reminders, err := s.coordinator.ListReminders(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if reminders == nil {
		reminders = []*models.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

func (s *Server) getReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reminder, err := s.coordinator.GetReminder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reminder)
}

func (s *Server) editReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reminder := &models.Reminder{}
	if err := json.NewDecoder(r.Body).Decode(reminder); err != nil {
		http.Error(w, "Error parsing request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	reminder.ID = id
	if err := s.coordinator.EditReminder(r.Context(), reminder); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reminder)
}

func (s *Server) deleteReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ownerID, ok := queryInt64(w, r, "owner_id")
	if !ok {
		return
	}
	if err := s.coordinator.DeleteReminder(r.Context(), id, ownerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req := struct {
		Enabled bool `json:"enabled"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.coordinator.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) processAction(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Token string `json:"token"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	token, err := notify.DecodeToken(req.Token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.coordinator.ProcessAction(r.Context(), token); err != nil {
		if errors.Is(err, scheduler.ErrStaleAction) {
			// The reminder went away between fire and action; nothing to do.
			w.WriteHeader(http.StatusGone)
			return
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAdherence(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := queryInt64(w, r, "owner_id")
	if !ok {
		return
	}
	windowDays := 7
	if v := r.URL.Query().Get("window_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "window_days must be a positive integer", http.StatusBadRequest)
			return
		}
		windowDays = n
	}
	adherence, err := s.coordinator.GetAdherence(r.Context(), ownerID, windowDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adherence)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := queryInt64(w, r, "owner_id")
	if !ok {
		return
	}
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "from must be RFC 3339", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "to must be RFC 3339", http.StatusBadRequest)
			return
		}
		to = t
	}
	entries, err := s.coordinator.ListHistory(r.Context(), ownerID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.ReminderHistory{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) purgeHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := queryInt64(w, r, "owner_id")
	if !ok {
		return
	}
	if err := s.coordinator.PurgeHistory(r.Context(), ownerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid reminder id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		http.Error(w, name+" is required and must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduler.ErrNotFound):
		http.Error(w, "reminder not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
