package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// DataType enumerates the supported data sources feeding a carousel.
type DataType string

const (
	DataTypeCSV          DataType = "csv"
	DataTypeScript       DataType = "script"
	DataTypeInstructions DataType = "instructions"
)

// Valid reports whether t is one of the known data source kinds.
func (t DataType) Valid() bool {
	switch t {
	case DataTypeCSV, DataTypeScript, DataTypeInstructions:
		return true
	}
	return false
}

// MaxVariants caps how many carousel variants one job may request.
const MaxVariants = 20

// GeneratedPrompt is written once per variant by the processor.
type GeneratedPrompt struct {
	ID     string            `json:"id"`
	Prompt string            `json:"prompt"`
	Data   map[string]string `json:"data,omitempty"`
}

// Job is one carousel generation request and its lifecycle record.
//
// Template fields are a snapshot taken at creation time and are never
// refreshed when the source template changes.
type Job struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"user_id"`
	Name                string            `json:"name"`
	TemplateID          string            `json:"template_id"`
	TemplateName        string            `json:"template_name,omitempty"`
	TemplateDescription string            `json:"template_description,omitempty"`
	TemplateImageURL    string            `json:"template_image_url,omitempty"`
	Status              JobStatus         `json:"status"`
	Progress            int               `json:"progress"`
	Variants            int               `json:"variants"`
	DataType            DataType          `json:"data_type"`
	DataContent         json.RawMessage   `json:"data_content,omitempty"`
	Message             string            `json:"message,omitempty"`
	ImageURLs           []string          `json:"image_urls,omitempty"`
	Prompts             []GeneratedPrompt `json:"prompts,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.DataContent != nil {
		cp.DataContent = append(json.RawMessage(nil), j.DataContent...)
	}
	if j.ImageURLs != nil {
		cp.ImageURLs = append([]string(nil), j.ImageURLs...)
	}
	if j.Prompts != nil {
		cp.Prompts = make([]GeneratedPrompt, len(j.Prompts))
		for i, p := range j.Prompts {
			cp.Prompts[i] = p
			if p.Data != nil {
				cp.Prompts[i].Data = make(map[string]string, len(p.Data))
				for k, v := range p.Data {
					cp.Prompts[i].Data[k] = v
				}
			}
		}
	}
	return &cp
}

// ListOrder controls the created_at ordering of job listings.
type ListOrder string

const (
	OrderNewestFirst ListOrder = "desc"
	OrderOldestFirst ListOrder = "asc"
)

// ParseListOrder maps free-form input onto a ListOrder, newest first by default.
func ParseListOrder(v string) ListOrder {
	if ListOrder(v) == OrderOldestFirst {
		return OrderOldestFirst
	}
	return OrderNewestFirst
}
