// Package processor holds both sides of the processing boundary: the trigger
// the API uses to hand a job to the worker, and the worker workflow that
// advances the job in the store.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carousel/internal/domain"
)

// Request is the payload sent to the worker for one job.
type Request struct {
	JobID               string          `json:"jobId"`
	TemplateID          string          `json:"templateId"`
	TemplateName        string          `json:"templateName,omitempty"`
	TemplateDescription string          `json:"templateDescription,omitempty"`
	TemplateImageURL    string          `json:"templateImageUrl,omitempty"`
	NumVariants         int             `json:"numVariants"`
	DataType            domain.DataType `json:"dataType"`
	DataContent         json.RawMessage `json:"dataContent"`
}

// RequestFromJob derives the worker parameters from a stored job.
func RequestFromJob(job *domain.Job) Request {
	return Request{
		JobID:               job.ID,
		TemplateID:          job.TemplateID,
		TemplateName:        job.TemplateName,
		TemplateDescription: job.TemplateDescription,
		TemplateImageURL:    job.TemplateImageURL,
		NumVariants:         job.Variants,
		DataType:            job.DataType,
		DataContent:         job.DataContent,
	}
}

// Trigger starts remote processing of a job. A returned error means the
// worker never accepted the job.
type Trigger interface {
	Invoke(ctx context.Context, req Request) error
}

// HTTPTrigger posts requests to the worker function endpoint.
type HTTPTrigger struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPTrigger builds a trigger for endpoint. A nil client gets a 30s
// timeout.
func NewHTTPTrigger(endpoint, token string, client *http.Client) *HTTPTrigger {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTrigger{endpoint: endpoint, token: strings.TrimSpace(token), client: client}
}

// Invoke sends req and treats any non-2xx answer as a failed invocation.
func (t *HTTPTrigger) Invoke(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", domain.ErrTriggerInvocation, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrTriggerInvocation, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTriggerInvocation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := strings.TrimSpace(string(detail))
		if json.Unmarshal(detail, &envelope) == nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: worker responded %d: %s", domain.ErrTriggerInvocation, resp.StatusCode, msg)
	}
	return nil
}
