package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"carousel/internal/domain"
	"carousel/internal/storage"
)

const folderMimeType = "application/vnd.google-apps.folder"

var (
	// ErrNothingToExport is returned for jobs without finished images.
	ErrNothingToExport = errors.New("drive: job has no images to export")
	errUnauthorized    = errors.New("drive: token rejected")
)

// ImageSource loads a result image by URL.
type ImageSource interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Result describes an exported carousel.
type Result struct {
	FolderID  string   `json:"folder_id"`
	FolderURL string   `json:"folder_url,omitempty"`
	FileIDs   []string `json:"file_ids"`
}

// Exporter uploads job images into a new Drive folder.
type Exporter struct {
	endpoint string
	images   ImageSource
	logger   zerolog.Logger
}

// NewExporter targets the public Drive API.
func NewExporter(images ImageSource, logger zerolog.Logger) *Exporter {
	return &Exporter{images: images, logger: logger}
}

// WithEndpoint points the exporter at another Drive API base path, e.g.
// "http://127.0.0.1:8080/drive/v3/". Uploads go to the matching
// /upload/drive/v3 path on the same host.
func (e *Exporter) WithEndpoint(endpoint string) *Exporter {
	e.endpoint = endpoint
	return e
}

// Export creates a folder named after the job and uploads every image. A token
// rejected by Drive is refreshed once before giving up.
func (e *Exporter) Export(ctx context.Context, sess *Session, job *domain.Job) (*Result, error) {
	if job == nil || job.Status != domain.JobStatusCompleted || len(job.ImageURLs) == 0 {
		return nil, ErrNothingToExport
	}
	res, err := e.export(ctx, sess, job)
	if errors.Is(err, errUnauthorized) {
		if _, rerr := sess.Refresh(ctx); rerr != nil {
			return nil, rerr
		}
		res, err = e.export(ctx, sess, job)
	}
	if errors.Is(err, errUnauthorized) {
		sess.Invalidate()
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return res, err
}

func (e *Exporter) service(ctx context.Context, client *http.Client) (*drivev3.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if e.endpoint != "" {
		opts = append(opts, option.WithEndpoint(e.endpoint))
	}
	return drivev3.NewService(ctx, opts...)
}

func (e *Exporter) export(ctx context.Context, sess *Session, job *domain.Job) (*Result, error) {
	client, err := sess.Client(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := e.service(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	logger := e.logger.With().Str("job_id", job.ID).Logger()

	name := strings.TrimSpace(job.Name)
	if name == "" {
		name = "Carousel " + job.ID
	}
	folder, err := srv.Files.Create(&drivev3.File{Name: name, MimeType: folderMimeType}).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("create folder: %w", classify(err))
	}

	res := &Result{FolderID: folder.Id, FolderURL: folder.WebViewLink}
	for i, url := range job.ImageURLs {
		data, contentType, err := e.images.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetch image %d: %w", i+1, err)
		}
		file := &drivev3.File{
			Name:    fmt.Sprintf("%02d%s", i+1, extension(url, contentType)),
			Parents: []string{folder.Id},
		}
		created, err := srv.Files.Create(file).
			Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("upload image %d: %w", i+1, classify(err))
		}
		res.FileIDs = append(res.FileIDs, created.Id)
	}
	logger.Info().Str("folder_id", res.FolderID).Int("files", len(res.FileIDs)).Msg("drive: export finished")
	return res, nil
}

// classify maps a 401 from Drive to errUnauthorized so Export can refresh.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", errUnauthorized, apiErr.Message)
	}
	return err
}

func extension(url, contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if ext := path.Ext(url); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".png"
}

// StoreImages reads images from the local file store when the URL belongs to
// it and downloads them otherwise.
type StoreImages struct {
	files  *storage.FileStore
	client *http.Client
}

// NewStoreImages returns an ImageSource backed by files.
func NewStoreImages(files *storage.FileStore, client *http.Client) *StoreImages {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &StoreImages{files: files, client: client}
}

func (s *StoreImages) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if s.files != nil {
		if key, ok := s.files.KeyFromURL(url); ok {
			data, err := s.files.Read(ctx, key)
			if err != nil {
				return nil, "", err
			}
			return data, http.DetectContentType(data), nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
