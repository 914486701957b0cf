package processor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"carousel/internal/domain"
)

func TestBuildPromptsCSVBindsRows(t *testing.T) {
	req := Request{
		NumVariants: 3,
		DataType:    domain.DataTypeCSV,
		DataContent: json.RawMessage(`[{"product_name":"Kopi","price":25000},{"product_name":"Teh","price":null}]`),
	}
	prompts, err := BuildPrompts(req)
	if err != nil {
		t.Fatalf("BuildPrompts returned error: %v", err)
	}
	if len(prompts) != 3 {
		t.Fatalf("len = %d, want 3", len(prompts))
	}
	if prompts[0].Data["product_name"] != "Kopi" || prompts[0].Data["price"] != "25000" {
		t.Fatalf("row binding = %#v", prompts[0].Data)
	}
	if !strings.Contains(prompts[0].Prompt, "Product Name: Kopi") {
		t.Fatalf("prompt = %q", prompts[0].Prompt)
	}
	if prompts[2].Data["product_name"] != "Kopi" {
		t.Fatalf("rows should cycle, got %#v", prompts[2].Data)
	}
	if prompts[0].ID == prompts[1].ID || len(prompts[0].ID) != promptIDSize {
		t.Fatalf("prompt ids = %q, %q", prompts[0].ID, prompts[1].ID)
	}
}

func TestBuildPromptsScriptSplitsParagraphs(t *testing.T) {
	raw, _ := json.Marshal("intro\n\nbody one\n\nbody two\n\noutro")
	prompts, err := BuildPrompts(Request{NumVariants: 2, DataType: domain.DataTypeScript, DataContent: raw})
	if err != nil {
		t.Fatalf("BuildPrompts returned error: %v", err)
	}
	if !strings.Contains(prompts[0].Prompt, "intro\n\nbody one") || strings.Contains(prompts[0].Prompt, "outro") {
		t.Fatalf("first prompt = %q", prompts[0].Prompt)
	}
	if !strings.Contains(prompts[1].Prompt, "body two\n\noutro") {
		t.Fatalf("second prompt = %q", prompts[1].Prompt)
	}
}

func TestBuildPromptsInstructions(t *testing.T) {
	raw, _ := json.Marshal("  Promote the weekend sale  ")
	prompts, err := BuildPrompts(Request{NumVariants: 2, TemplateName: "Minimal", DataType: domain.DataTypeInstructions, DataContent: raw})
	if err != nil {
		t.Fatalf("BuildPrompts returned error: %v", err)
	}
	if !strings.HasPrefix(prompts[1].Prompt, `Carousel slide 2 of 2 in the style of "Minimal".`) {
		t.Fatalf("prompt = %q", prompts[1].Prompt)
	}
	if !strings.HasSuffix(prompts[1].Prompt, "Instructions: Promote the weekend sale") {
		t.Fatalf("prompt = %q", prompts[1].Prompt)
	}
}

func TestBuildPromptsRejectsBadPayloads(t *testing.T) {
	cases := []Request{
		{NumVariants: 0, DataType: domain.DataTypeScript, DataContent: json.RawMessage(`"x"`)},
		{NumVariants: 1, DataType: domain.DataTypeCSV, DataContent: json.RawMessage(`[]`)},
		{NumVariants: 1, DataType: domain.DataTypeScript, DataContent: json.RawMessage(`"   "`)},
		{NumVariants: 1, DataType: domain.DataTypeInstructions, DataContent: json.RawMessage(`{"a":1}`)},
		{NumVariants: 1, DataType: "pdf", DataContent: json.RawMessage(`"x"`)},
	}
	for i, req := range cases {
		if _, err := BuildPrompts(req); !errors.Is(err, domain.ErrInvalidJob) {
			t.Fatalf("case %d: err = %v, want ErrInvalidJob", i, err)
		}
	}
}
