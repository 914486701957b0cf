package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carousel/internal/domain"
)

func TestHTTPTriggerSendsRequest(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer worker-secret" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	job := &domain.Job{ID: "job-1", TemplateID: "tpl-1", TemplateName: "Bold", Variants: 4, DataType: domain.DataTypeScript, DataContent: json.RawMessage(`"hi"`)}
	trigger := NewHTTPTrigger(srv.URL, "worker-secret", nil)
	if err := trigger.Invoke(context.Background(), RequestFromJob(job)); err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if got.JobID != "job-1" || got.NumVariants != 4 || got.TemplateName != "Bold" || string(got.DataContent) != `"hi"` {
		t.Fatalf("worker received %#v", got)
	}
}

func TestHTTPTriggerReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"busy","message":"worker at capacity"}}`))
	}))
	defer srv.Close()

	err := NewHTTPTrigger(srv.URL, "", nil).Invoke(context.Background(), Request{JobID: "job-1"})
	if !errors.Is(err, domain.ErrTriggerInvocation) {
		t.Fatalf("err = %v, want ErrTriggerInvocation", err)
	}
	if !strings.Contains(err.Error(), "worker at capacity") {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTPTriggerReportsUnreachableWorker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPTrigger(url, "", nil).Invoke(context.Background(), Request{JobID: "job-1"})
	if !errors.Is(err, domain.ErrTriggerInvocation) {
		t.Fatalf("err = %v, want ErrTriggerInvocation", err)
	}
}
