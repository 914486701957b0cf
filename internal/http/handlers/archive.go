package handlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"carousel/internal/domain"
	"carousel/pkg/zip"
)

// ImageFetcher loads a generated image by its public URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DownloadArchive returns every image of a completed job as one zip file.
func (a *App) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if job.Status != domain.JobStatusCompleted || len(job.ImageURLs) == 0 {
		a.error(w, http.StatusConflict, "nothing_to_download", "job has no finished images")
		return
	}
	if a.Images == nil {
		a.error(w, http.StatusServiceUnavailable, "archive_unavailable", "image storage is not configured")
		return
	}

	assets := make([]zip.Asset, 0, len(job.ImageURLs))
	for i, url := range job.ImageURLs {
		data, contentType, err := a.Images.Fetch(r.Context(), url)
		if err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Str("url", url).Msg("http: archive image fetch failed")
			a.error(w, http.StatusBadGateway, "image_unavailable", fmt.Sprintf("image %d could not be loaded", i+1))
			return
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("slide-%02d%s", i+1, imageExtension(contentType)),
			Data:     data,
			Modified: job.UpdatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, archiveName(job)))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, assets); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("http: archive write interrupted")
	}
}

func archiveName(job *domain.Job) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(job.Name, "-"), "-.")
	if name == "" {
		return "carousel-" + job.ID
	}
	return name
}

func imageExtension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
