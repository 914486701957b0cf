package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"carousel/internal/domain"
)

type createTemplateRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
}

func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	list, err := a.Templates.ListByUser(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Template{}
	}
	a.json(w, http.StatusOK, map[string]any{"templates": list})
}

func (a *App) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	tpl := &domain.Template{
		ID:          a.newID(),
		UserID:      userID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		ImageURL:    strings.TrimSpace(req.ImageURL),
		CreatedAt:   a.now().UTC(),
	}
	if err := a.Templates.Create(r.Context(), tpl); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, tpl)
}
