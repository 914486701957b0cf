package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

type driveTokenRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in" validate:"min=0"`
}

// PutDriveToken installs the caller's Drive token. The consent flow happens in
// the client; only the resulting token is handed over.
func (a *App) PutDriveToken(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req driveTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	tok := &oauth2.Token{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken, TokenType: "Bearer"}
	if req.ExpiresIn > 0 {
		tok.Expiry = a.now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}
	if err := a.Drive.Acquire(r.Context(), userID, tok); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) DeleteDriveToken(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := a.Drive.Invalidate(r.Context(), userID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ExportToDrive(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sess, err := a.Drive.Get(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Exporter.Export(r.Context(), sess, job)
	a.Drive.Persist(r.Context(), userID, sess)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
