package http

import (
	"net/http"
	"time"

	"hearth/internal/core"
	applog "hearth/internal/log"
)

type calendarEventDTO struct {
	ID        string     `json:"id"`
	GroupID   string     `json:"group_id"`
	Title     string     `json:"title"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

func toCalendarEventDTO(e core.CalendarEvent) calendarEventDTO {
	dto := calendarEventDTO{
		ID: e.ID, GroupID: e.GroupID, Title: e.Title,
		StartsAt: e.StartsAt, CreatedBy: e.CreatedBy, CreatedAt: e.CreatedAt,
	}
	if !e.EndsAt.IsZero() {
		ends := e.EndsAt
		dto.EndsAt = &ends
	}
	return dto
}

func (s *Server) handleListCalendarEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListCalendarEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]calendarEventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toCalendarEventDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCalendarEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string     `json:"title"`
		StartsAt  time.Time  `json:"starts_at"`
		EndsAt    *time.Time `json:"ends_at"`
		CreatedBy string     `json:"created_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event := core.CalendarEvent{
		GroupID:   r.PathValue("id"),
		Title:     sanitizeInput(req.Title),
		StartsAt:  req.StartsAt,
		CreatedBy: req.CreatedBy,
	}
	if req.EndsAt != nil {
		event.EndsAt = *req.EndsAt
	}
	if err := event.Validate(); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.store.InsertCalendarEvent(r.Context(), event)
	if err != nil {
		reqLog(r.Context()).ErrorContext(r.Context(), "Calendar event creation failed",
			applog.FieldGroupID, event.GroupID, applog.FieldError, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCalendarEventDTO(created))
}

func (s *Server) handleDeleteCalendarEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCalendarEvent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
