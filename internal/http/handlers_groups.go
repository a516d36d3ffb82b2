package http

import (
	"net/http"
	"strings"
	"time"

	"hearth/internal/core"
	applog "hearth/internal/log"
)

type profileDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type groupDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"invite_code"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type membershipDTO struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

func toGroupDTO(g core.Group) groupDTO {
	return groupDTO{ID: g.ID, Name: g.Name, InviteCode: g.InviteCode, CreatedBy: g.CreatedBy, CreatedAt: g.CreatedAt}
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var req profileDTO
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.DisplayName = sanitizeInput(req.DisplayName)
	if req.ID == "" {
		errorJSON(w, http.StatusUnprocessableEntity, core.ErrMissingUser.Error())
		return
	}

	if err := s.store.UpsertProfile(r.Context(), core.Profile{ID: req.ID, DisplayName: req.DisplayName}); err != nil {
		reqLog(r.Context()).ErrorContext(r.Context(), "Profile upsert failed", applog.FieldUserID, req.ID, applog.FieldError, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileDTO{ID: p.ID, DisplayName: p.DisplayName})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		CreatedBy string `json:"created_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = sanitizeInput(req.Name)
	if req.Name == "" {
		errorJSON(w, http.StatusUnprocessableEntity, core.ErrEmptyName.Error())
		return
	}
	if req.CreatedBy == "" {
		errorJSON(w, http.StatusUnprocessableEntity, core.ErrMissingUser.Error())
		return
	}

	g, err := s.store.CreateGroup(r.Context(), core.Group{Name: req.Name, CreatedBy: req.CreatedBy})
	if err != nil {
		reqLog(r.Context()).ErrorContext(r.Context(), "Group creation failed", applog.FieldError, err)
		writeError(w, err)
		return
	}
	reqLog(r.Context()).InfoContext(r.Context(), "Group created", applog.FieldGroupID, g.ID, applog.FieldUserID, g.CreatedBy)
	writeJSON(w, http.StatusCreated, toGroupDTO(g))
}

// handleJoinGroup resolves an invite code and adds the user as a member.
// Joining twice is a no-op.
func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode string `json:"invite_code"`
		UserID     string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.InviteCode = strings.TrimSpace(req.InviteCode)
	if req.InviteCode == "" || req.UserID == "" {
		errorJSON(w, http.StatusUnprocessableEntity, "invite_code and user_id are required")
		return
	}

	g, err := s.store.GetGroupByInviteCode(r.Context(), req.InviteCode)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.AddMember(r.Context(), core.Membership{GroupID: g.ID, UserID: req.UserID}); err != nil {
		reqLog(r.Context()).ErrorContext(r.Context(), "Join failed", applog.FieldGroupID, g.ID, applog.FieldUserID, req.UserID, applog.FieldError, err)
		writeError(w, err)
		return
	}
	reqLog(r.Context()).InfoContext(r.Context(), "Member joined", applog.FieldGroupID, g.ID, applog.FieldUserID, req.UserID)
	writeJSON(w, http.StatusOK, toGroupDTO(g))
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		errorJSON(w, http.StatusBadRequest, "user_id is required")
		return
	}

	groups, err := s.store.ListGroups(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupDTO(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.ListMembers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]membershipDTO, 0, len(members))
	for _, m := range members {
		out = append(out, membershipDTO{GroupID: m.GroupID, UserID: m.UserID, JoinedAt: m.JoinedAt})
	}
	writeJSON(w, http.StatusOK, out)
}
