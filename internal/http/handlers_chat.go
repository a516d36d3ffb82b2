package http

import (
	"net/http"
	"time"

	"hearth/internal/core"
	applog "hearth/internal/log"
)

type messageDTO struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMessageDTO(m core.Message) messageDTO {
	return messageDTO{
		ID: m.ID, GroupID: m.GroupID, UserID: m.UserID,
		Content: m.Content, Type: string(m.Type), CreatedAt: m.CreatedAt,
	}
}

// handleListMessages returns the transcript with author display names
// resolved in one batch. Missing profiles degrade to an empty name.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	messages, err := s.store.ListMessages(r.Context(), groupID, parseLimit(r, s.chatLimit))
	if err != nil {
		writeError(w, err)
		return
	}

	names := s.resolveNames(r, messages)
	out := make([]messageDTO, 0, len(messages))
	for _, m := range messages {
		dto := toMessageDTO(m)
		dto.DisplayName = names[m.UserID]
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) resolveNames(r *http.Request, messages []core.Message) map[string]string {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range messages {
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}
		ids = append(ids, m.UserID)
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names
	}

	profiles, err := s.store.ListProfiles(r.Context(), ids)
	if err != nil {
		reqLog(r.Context()).WarnContext(r.Context(), "Author name resolution failed",
			"authors", len(ids), applog.FieldError, err)
		return names
	}
	for _, p := range profiles {
		names[p.ID] = p.DisplayName
	}
	return names
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m := core.Message{
		GroupID: r.PathValue("id"),
		UserID:  req.UserID,
		Content: req.Content,
		Type:    core.MessageText,
	}
	if err := m.Validate(); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.store.InsertMessage(r.Context(), m)
	if err != nil {
		reqLog(r.Context()).ErrorContext(r.Context(), "Message send failed",
			applog.FieldGroupID, m.GroupID, applog.FieldUserID, m.UserID, applog.FieldError, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageDTO(created))
}
