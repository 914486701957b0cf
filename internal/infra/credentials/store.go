// Package credentials persists third-party secrets: the worker's model API key
// and each user's Google Drive token.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"carousel/internal/domain"
	"carousel/internal/infra"
	"carousel/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

// Token returns the stored secret for provider, or "" when none is set.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, ProviderGemini, key)
	return err
}

// DriveToken loads the Drive token saved for userID. It reports
// domain.ErrNotFound when the user never connected Drive.
func (s *Store) DriveToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectDriveToken, userID)
	var (
		tok    oauth2.Token
		expiry *time.Time
	)
	if err := row.Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load drive token: %w", err)
	}
	if expiry != nil {
		tok.Expiry = *expiry
	}
	return &tok, nil
}

// SaveDriveToken stores tok for userID. An empty refresh token keeps the one
// already on file.
func (s *Store) SaveDriveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return errors.New("drive access token is required")
	}
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		expiry = &e
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertDriveToken, userID, tok.AccessToken, tok.RefreshToken, tokenType, expiry); err != nil {
		return fmt.Errorf("save drive token: %w", err)
	}
	return nil
}

// DeleteDriveToken forgets the Drive token of userID.
func (s *Store) DeleteDriveToken(ctx context.Context, userID string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QDeleteDriveToken, userID); err != nil {
		return fmt.Errorf("delete drive token: %w", err)
	}
	return nil
}
