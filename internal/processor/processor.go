package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"carousel/internal/domain"
	"carousel/internal/providers/genai"
)

// Progress checkpoints written while a job runs.
const (
	progressPrompts = 5
	progressImages  = 10
	progressCeiling = 99
)

// ImageGenerator renders one slide.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
}

// AssetStore persists a rendered slide and returns its public URL.
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// Processor runs the generation workflow for one job at a time and records
// every step in the job store.
type Processor struct {
	store  domain.JobProgressWriter
	images ImageGenerator
	assets AssetStore
	logger zerolog.Logger
	aspect string
}

// New returns a Processor writing progress through store.
func New(store domain.JobProgressWriter, images ImageGenerator, assets AssetStore, logger zerolog.Logger) *Processor {
	return &Processor{store: store, images: images, assets: assets, logger: logger, aspect: "4:5"}
}

// Process advances the job from queued to a terminal state. Any failure is
// written to the job as status failed before being returned.
func (p *Processor) Process(ctx context.Context, req Request) error {
	logger := p.logger.With().Str("job_id", req.JobID).Logger()
	if err := p.run(ctx, req, logger); err != nil {
		logger.Error().Err(err).Msg("processor: job failed")
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := p.store.Fail(failCtx, req.JobID, err.Error()); ferr != nil && !errors.Is(ferr, domain.ErrInvalidTransition) && !errors.Is(ferr, domain.ErrNotFound) {
			logger.Error().Err(ferr).Msg("processor: failed to record failure")
		}
		return err
	}
	return nil
}

func (p *Processor) run(ctx context.Context, req Request, logger zerolog.Logger) error {
	if err := p.store.MarkProcessing(ctx, req.JobID, progressPrompts, "Generating prompts"); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	prompts, err := BuildPrompts(req)
	if err != nil {
		return err
	}
	if err := p.store.SavePrompts(ctx, req.JobID, prompts); err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	if err := p.store.UpdateProgress(ctx, req.JobID, progressImages, "Generating images"); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	logger.Info().Int("variants", len(prompts)).Msg("processor: prompts ready")

	n := len(prompts)
	urls := make([]string, 0, n)
	placeholders := 0
	for i, prompt := range prompts {
		asset, err := p.images.GenerateImage(ctx, genai.ImageRequest{
			Prompt:        prompt.Prompt,
			JobID:         req.JobID,
			Variant:       i + 1,
			AspectRatio:   p.aspect,
			ReferenceURL:  req.TemplateImageURL,
			TemplateTitle: req.TemplateName,
		})
		if err != nil {
			return fmt.Errorf("generate image %d: %w", i+1, err)
		}
		if asset.Synthetic {
			placeholders++
		}
		key := fmt.Sprintf("jobs/%s/%02d-%s.%s", req.JobID, i+1, prompt.ID, asset.Extension())
		url, err := p.assets.Put(ctx, key, asset.Data)
		if err != nil {
			return fmt.Errorf("store image %d: %w", i+1, err)
		}
		urls = append(urls, url)

		progress := min(progressImages+(100-progressImages)*(i+1)/n, progressCeiling)
		if err := p.store.UpdateProgress(ctx, req.JobID, progress, fmt.Sprintf("Generated %d of %d images", i+1, n)); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
	}

	message := fmt.Sprintf("Generated %d images", len(urls))
	if placeholders > 0 {
		message += fmt.Sprintf(" (%d placeholders, no Gemini API key configured)", placeholders)
	}
	if err := p.store.Complete(ctx, req.JobID, urls, message); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	logger.Info().Int("images", len(urls)).Int("placeholders", placeholders).Msg("processor: job completed")
	return nil
}

// Runner executes accepted requests in the background with bounded
// concurrency.
type Runner struct {
	proc   *Processor
	ctx    context.Context
	slots  chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewRunner starts jobs under ctx; cancelling ctx aborts running jobs.
func NewRunner(ctx context.Context, proc *Processor, concurrency int, logger zerolog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{proc: proc, ctx: ctx, slots: make(chan struct{}, concurrency), logger: logger}
}

// Submit schedules req. It reports false once the runner is shutting down.
func (r *Runner) Submit(req Request) bool {
	if r.ctx.Err() != nil {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case r.slots <- struct{}{}:
		case <-r.ctx.Done():
			r.logger.Warn().Str("job_id", req.JobID).Msg("processor: shutting down before job started")
			return
		}
		defer func() { <-r.slots }()
		_ = r.proc.Process(r.ctx, req)
	}()
	return true
}

// Wait blocks until every submitted job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
