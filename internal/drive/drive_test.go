package drive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"carousel/internal/domain"
)

func tokenServer(t *testing.T, access string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + access + `","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	cfg := NewOAuthConfig("client", "secret")
	cfg.Endpoint = oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
	return cfg
}

func TestSessionLifecycle(t *testing.T) {
	srv := tokenServer(t, "fresh")
	sess := NewSession(testConfig(srv.URL))

	_, err := sess.Token(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	require.Error(t, sess.Acquire(&oauth2.Token{}))

	require.NoError(t, sess.Acquire(&oauth2.Token{AccessToken: "old", RefreshToken: "r1", Expiry: time.Now().Add(-time.Minute)}))
	tok, err := sess.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken, "refresh token is kept when the server omits it")

	sess.Invalidate()
	assert.False(t, sess.Active())
}

func TestSessionRefreshWithoutRefreshToken(t *testing.T) {
	sess := NewSession(testConfig("http://127.0.0.1:0"))
	require.NoError(t, sess.Acquire(&oauth2.Token{AccessToken: "old"}))

	_, err := sess.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.False(t, sess.Active())
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
}

func (m *memTokens) DriveToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return tok, nil
}

func (m *memTokens) SaveDriveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = tok
	return nil
}

func (m *memTokens) DeleteDriveToken(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}

func TestSessionsRestoreAndInvalidate(t *testing.T) {
	store := &memTokens{tokens: map[string]*oauth2.Token{"user-1": {AccessToken: "saved"}}}
	reg := NewSessions(testConfig("http://127.0.0.1:0"), store, zerolog.Nop())
	ctx := context.Background()

	sess, err := reg.Get(ctx, "user-1")
	require.NoError(t, err)
	tok, err := sess.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "saved", tok.AccessToken)

	_, err = reg.Get(ctx, "user-2")
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, reg.Acquire(ctx, "user-2", &oauth2.Token{AccessToken: "new"}))
	assert.Equal(t, "new", store.tokens["user-2"].AccessToken)

	require.NoError(t, reg.Invalidate(ctx, "user-1"))
	_, err = reg.Get(ctx, "user-1")
	require.ErrorIs(t, err, ErrNoSession)
}

type staticImages struct{}

func (staticImages) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	return []byte("\x89PNG" + url), "image/png", nil
}

type fakeDrive struct {
	mu       sync.Mutex
	reject   int
	folders  []string
	uploads  []string
	parents  []string
	bearer   []string
	endpoint *httptest.Server
}

func newFakeDrive(t *testing.T, reject int) *fakeDrive {
	d := &fakeDrive{reject: reject}
	mux := http.NewServeMux()
	mux.HandleFunc("/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		if !d.authorize(w, r) {
			return
		}
		var meta map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&meta)) {
			return
		}
		d.mu.Lock()
		d.folders = append(d.folders, meta["name"].(string))
		d.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"folder-1","webViewLink":"https://drive/folder-1"}`))
	})
	mux.HandleFunc("/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		if !d.authorize(w, r) {
			return
		}
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !assert.NoError(t, err) {
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		metaPart, err := mr.NextPart()
		if !assert.NoError(t, err) {
			return
		}
		var meta struct {
			Name    string   `json:"name"`
			Parents []string `json:"parents"`
		}
		if !assert.NoError(t, json.NewDecoder(metaPart).Decode(&meta)) {
			return
		}
		media, err := mr.NextPart()
		if !assert.NoError(t, err) {
			return
		}
		body, _ := io.ReadAll(media)
		assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))

		d.mu.Lock()
		d.uploads = append(d.uploads, meta.Name)
		d.parents = append(d.parents, meta.Parents...)
		n := len(d.uploads)
		d.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"file-` + string(rune('0'+n)) + `"}`))
	})
	d.endpoint = httptest.NewServer(mux)
	t.Cleanup(d.endpoint.Close)
	return d
}

func (d *fakeDrive) authorize(w http.ResponseWriter, r *http.Request) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bearer = append(d.bearer, r.Header.Get("Authorization"))
	if d.reject > 0 {
		d.reject--
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
		return false
	}
	return true
}

func completedJob() *domain.Job {
	return &domain.Job{
		ID:        "job-1",
		Name:      "Weekend promo",
		Status:    domain.JobStatusCompleted,
		Progress:  100,
		ImageURLs: []string{"https://cdn/1.png", "https://cdn/2.png"},
	}
}

func TestExportUploadsEveryImage(t *testing.T) {
	d := newFakeDrive(t, 0)
	sess := NewSession(testConfig("http://127.0.0.1:0"))
	require.NoError(t, sess.Acquire(&oauth2.Token{AccessToken: "tok"}))

	exp := NewExporter(staticImages{}, zerolog.Nop()).WithEndpoint(d.endpoint.URL + "/drive/v3/")
	res, err := exp.Export(context.Background(), sess, completedJob())
	require.NoError(t, err)

	assert.Equal(t, "folder-1", res.FolderID)
	assert.Equal(t, "https://drive/folder-1", res.FolderURL)
	assert.Equal(t, []string{"file-1", "file-2"}, res.FileIDs)
	assert.Equal(t, []string{"Weekend promo"}, d.folders)
	assert.Equal(t, []string{"01.png", "02.png"}, d.uploads)
	assert.Equal(t, []string{"folder-1", "folder-1"}, d.parents)
	assert.Equal(t, "Bearer tok", d.bearer[0])
}

func TestExportRefreshesRejectedToken(t *testing.T) {
	d := newFakeDrive(t, 1)
	srv := tokenServer(t, "refreshed")
	sess := NewSession(testConfig(srv.URL))
	require.NoError(t, sess.Acquire(&oauth2.Token{AccessToken: "stale", RefreshToken: "r1"}))

	exp := NewExporter(staticImages{}, zerolog.Nop()).WithEndpoint(d.endpoint.URL + "/drive/v3/")
	res, err := exp.Export(context.Background(), sess, completedJob())
	require.NoError(t, err)
	assert.Len(t, res.FileIDs, 2)
	assert.Equal(t, "Bearer stale", d.bearer[0])
	assert.Equal(t, "Bearer refreshed", d.bearer[1])
}

func TestExportRejectsUnfinishedJob(t *testing.T) {
	sess := NewSession(testConfig("http://127.0.0.1:0"))
	require.NoError(t, sess.Acquire(&oauth2.Token{AccessToken: "tok"}))
	job := completedJob()
	job.Status = domain.JobStatusProcessing

	_, err := NewExporter(staticImages{}, zerolog.Nop()).Export(context.Background(), sess, job)
	assert.True(t, errors.Is(err, ErrNothingToExport))
}

func TestExportGivesUpAfterSecondRejection(t *testing.T) {
	d := newFakeDrive(t, 2)
	srv := tokenServer(t, "refreshed")
	sess := NewSession(testConfig(srv.URL))
	require.NoError(t, sess.Acquire(&oauth2.Token{AccessToken: "stale", RefreshToken: "r1"}))

	exp := NewExporter(staticImages{}, zerolog.Nop()).WithEndpoint(d.endpoint.URL + "/drive/v3/")
	_, err := exp.Export(context.Background(), sess, completedJob())
	require.ErrorIs(t, err, ErrNoSession)
	assert.False(t, sess.Active())
	assert.Empty(t, d.uploads)
}
