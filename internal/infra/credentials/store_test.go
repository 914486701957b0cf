package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/oauth2"

	"carousel/internal/domain"
)

type stubExecutor struct {
	row  []any
	err  error
	exec struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{values: s.row, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = r.values[i].(string)
		case **time.Time:
			*ptr = r.values[i].(*time.Time)
		default:
			return errors.New("unsupported dest")
		}
	}
	return nil
}

func TestGeminiAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{row: []any{" abc123 "}})
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GeminiAPIKey error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestGeminiAPIKey_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GeminiAPIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestSetGeminiAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetGeminiAPIKey(context.Background(), "secret"); err != nil {
		t.Fatalf("SetGeminiAPIKey error: %v", err)
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if err := store.SetGeminiAPIKey(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestDriveToken(t *testing.T) {
	expiry := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewStore(&stubExecutor{row: []any{"ya29.access", "1//refresh", "Bearer", &expiry}})
	tok, err := store.DriveToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("DriveToken error: %v", err)
	}
	if tok.AccessToken != "ya29.access" || tok.RefreshToken != "1//refresh" || !tok.Expiry.Equal(expiry) {
		t.Fatalf("unexpected token %#v", tok)
	}
}

func TestDriveToken_NotConnected(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	if _, err := store.DriveToken(context.Background(), "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveDriveToken(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SaveDriveToken(context.Background(), "user-1", &oauth2.Token{AccessToken: "ya29.access"}); err != nil {
		t.Fatalf("SaveDriveToken error: %v", err)
	}
	if len(exec.exec.args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(exec.exec.args))
	}
	if exec.exec.args[3] != "Bearer" {
		t.Fatalf("token type defaulted to %v", exec.exec.args[3])
	}
	if exp, ok := exec.exec.args[4].(*time.Time); !ok || exp != nil {
		t.Fatalf("zero expiry should be stored as null, got %v", exec.exec.args[4])
	}
	if err := store.SaveDriveToken(context.Background(), "user-1", &oauth2.Token{}); err == nil {
		t.Fatal("expected error for empty access token")
	}
}
