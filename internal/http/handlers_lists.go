package http

import (
	"net/http"
	"time"

	"hearth/internal/core"
	applog "hearth/internal/log"
)

type shoppingListDTO struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type listItemDTO struct {
	ID                 string    `json:"id"`
	ListID             string    `json:"list_id"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	Quantity           float64   `json:"quantity"`
	Unit               string    `json:"unit"`
	IsChecked          bool      `json:"is_checked"`
	AddedBy            string    `json:"added_by"`
	CheckedBy          string    `json:"checked_by"`
	PriceEstimateCents int64     `json:"price_estimate_cents"`
	Notes              string    `json:"notes"`
	CreatedAt          time.Time `json:"created_at"`
}

func toShoppingListDTO(l core.ShoppingList) shoppingListDTO {
	return shoppingListDTO{
		ID: l.ID, GroupID: l.GroupID, Name: l.Name,
		Status: string(l.Status), CreatedBy: l.CreatedBy, CreatedAt: l.CreatedAt,
	}
}

func toListItemDTO(i core.ListItem) listItemDTO {
	return listItemDTO{
		ID: i.ID, ListID: i.ListID, Name: i.Name, Category: i.Category,
		Quantity: i.Quantity, Unit: i.Unit, IsChecked: i.IsChecked,
		AddedBy: i.AddedBy, CheckedBy: i.CheckedBy,
		PriceEstimateCents: i.PriceEstimateCents, Notes: i.Notes, CreatedAt: i.CreatedAt,
	}
}

func (s *Server) handleListShoppingLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.store.ListShoppingLists(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]shoppingListDTO, 0, len(lists))
	for _, l := range lists {
		out = append(out, toShoppingListDTO(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateShoppingList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		CreatedBy string `json:"created_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	list := core.ShoppingList{
		GroupID:   r.PathValue("id"),
		Name:      sanitizeInput(req.Name),
		Status:    core.ListActive,
		CreatedBy: req.CreatedBy,
	}
	if err := list.Validate(); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.store.InsertShoppingList(r.Context(), list)
	if err != nil {
		reqLog(r.Context()).ErrorContext(r.Context(), "Shopping list creation failed",
			applog.FieldGroupID, list.GroupID, applog.FieldError, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShoppingListDTO(created))
}

// handleUpdateShoppingList renames or archives a list. Group and creation
// metadata are immutable.
func (s *Server) handleUpdateShoppingList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := core.ListStatus(req.Status)
	if status != core.ListActive && status != core.ListArchived {
		errorJSON(w, http.StatusUnprocessableEntity, "status must be active or archived")
		return
	}
	list := core.ShoppingList{
		ID:     r.PathValue("id"),
		Name:   sanitizeInput(req.Name),
		Status: status,
	}
	if list.Name == "" {
		errorJSON(w, http.StatusUnprocessableEntity, core.ErrEmptyName.Error())
		return
	}

	if err := s.store.UpdateShoppingList(r.Context(), list); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": list.ID, "status": string(status)})
}

func (s *Server) handleDeleteShoppingList(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteShoppingList(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]listItemDTO, 0, len(items))
	for _, i := range items {
		out = append(out, toListItemDTO(i))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name               string  `json:"name"`
		Category           string  `json:"category"`
		Quantity           float64 `json:"quantity"`
		Unit               string  `json:"unit"`
		AddedBy            string  `json:"added_by"`
		PriceEstimateCents int64   `json:"price_estimate_cents"`
		Notes              string  `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item := core.ListItem{
		ListID:             r.PathValue("id"),
		Name:               sanitizeInput(req.Name),
		Category:           sanitizeInput(req.Category),
		Quantity:           req.Quantity,
		Unit:               sanitizeInput(req.Unit),
		AddedBy:            req.AddedBy,
		PriceEstimateCents: req.PriceEstimateCents,
		Notes:              sanitizeInput(req.Notes),
	}
	if err := item.Validate(); err != nil {
		errorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.store.InsertListItem(r.Context(), item)
	if err != nil {
		reqLog(r.Context()).ErrorContext(r.Context(), "Item creation failed", applog.FieldError, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListItemDTO(created))
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req listItemDTO
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item := core.ListItem{
		ID:                 r.PathValue("id"),
		ListID:             req.ListID, // overwritten by the store with the stored value
		Name:               sanitizeInput(req.Name),
		Category:           sanitizeInput(req.Category),
		Quantity:           req.Quantity,
		Unit:               sanitizeInput(req.Unit),
		IsChecked:          req.IsChecked,
		CheckedBy:          req.CheckedBy,
		PriceEstimateCents: req.PriceEstimateCents,
		Notes:              sanitizeInput(req.Notes),
	}
	if item.Name == "" || item.Quantity <= 0 {
		errorJSON(w, http.StatusUnprocessableEntity, "name and positive quantity are required")
		return
	}

	if err := s.store.UpdateListItem(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": item.ID})
}

// handleCheckItem flips an item's checked state, recording who checked it.
func (s *Server) handleCheckItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Checked bool   `json:"checked"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.store.GetListItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	item.IsChecked = req.Checked
	if req.Checked {
		item.CheckedBy = req.UserID
	} else {
		item.CheckedBy = ""
	}
	if err := s.store.UpdateListItem(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListItemDTO(item))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteListItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
