package processor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"carousel/internal/domain"
)

const promptIDSize = 12

// BuildPrompts derives one prompt per variant from the job's data payload.
//
// csv rows are bound to variants in order (cycling when there are fewer rows
// than variants), script paragraphs are spread across variants, and
// instructions are repeated with the variant position.
func BuildPrompts(req Request) ([]domain.GeneratedPrompt, error) {
	if req.NumVariants <= 0 {
		return nil, fmt.Errorf("%w: variants must be positive", domain.ErrInvalidJob)
	}
	var (
		prompts []domain.GeneratedPrompt
		err     error
	)
	switch req.DataType {
	case domain.DataTypeCSV:
		prompts, err = csvPrompts(req)
	case domain.DataTypeScript:
		prompts, err = scriptPrompts(req)
	case domain.DataTypeInstructions:
		prompts, err = instructionPrompts(req)
	default:
		return nil, fmt.Errorf("%w: unsupported data type %q", domain.ErrInvalidJob, req.DataType)
	}
	if err != nil {
		return nil, err
	}
	for i := range prompts {
		id, err := gonanoid.New(promptIDSize)
		if err != nil {
			return nil, fmt.Errorf("prompt id: %w", err)
		}
		prompts[i].ID = id
	}
	return prompts, nil
}

func csvPrompts(req Request) ([]domain.GeneratedPrompt, error) {
	var rows []map[string]any
	if err := json.Unmarshal(req.DataContent, &rows); err != nil {
		return nil, fmt.Errorf("%w: csv data must be an array of rows: %v", domain.ErrInvalidJob, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: csv data has no rows", domain.ErrInvalidJob)
	}
	// Casers are stateful and must not be shared across goroutines.
	caser := cases.Title(language.Und)
	out := make([]domain.GeneratedPrompt, req.NumVariants)
	for i := range out {
		row := rows[i%len(rows)]
		data := make(map[string]string, len(row))
		keys := make([]string, 0, len(row))
		for k, v := range row {
			key := clean(k)
			if key == "" {
				continue
			}
			data[key] = clean(stringify(v))
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var b strings.Builder
		writeHeader(&b, req, i)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %s", caser.String(strings.ReplaceAll(k, "_", " ")), data[k])
		}
		out[i] = domain.GeneratedPrompt{Prompt: b.String(), Data: data}
	}
	return out, nil
}

func scriptPrompts(req Request) ([]domain.GeneratedPrompt, error) {
	text, err := textPayload(req.DataContent)
	if err != nil {
		return nil, err
	}
	var paragraphs []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = clean(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("%w: script is empty", domain.ErrInvalidJob)
	}

	n := req.NumVariants
	out := make([]domain.GeneratedPrompt, n)
	for i := range out {
		// Spread paragraphs evenly; with fewer paragraphs than variants the
		// script is reused from the start.
		var chunk []string
		if len(paragraphs) >= n {
			lo, hi := i*len(paragraphs)/n, (i+1)*len(paragraphs)/n
			chunk = paragraphs[lo:hi]
		} else {
			chunk = paragraphs[i%len(paragraphs) : i%len(paragraphs)+1]
		}
		var b strings.Builder
		writeHeader(&b, req, i)
		b.WriteString("\nSlide text:\n")
		b.WriteString(strings.Join(chunk, "\n\n"))
		out[i] = domain.GeneratedPrompt{Prompt: b.String()}
	}
	return out, nil
}

func instructionPrompts(req Request) ([]domain.GeneratedPrompt, error) {
	text, err := textPayload(req.DataContent)
	if err != nil {
		return nil, err
	}
	text = clean(text)
	if text == "" {
		return nil, fmt.Errorf("%w: instructions are empty", domain.ErrInvalidJob)
	}
	out := make([]domain.GeneratedPrompt, req.NumVariants)
	for i := range out {
		var b strings.Builder
		writeHeader(&b, req, i)
		b.WriteString("\nInstructions: ")
		b.WriteString(text)
		out[i] = domain.GeneratedPrompt{Prompt: b.String()}
	}
	return out, nil
}

func writeHeader(b *strings.Builder, req Request, i int) {
	fmt.Fprintf(b, "Carousel slide %d of %d", i+1, req.NumVariants)
	if name := clean(req.TemplateName); name != "" {
		fmt.Fprintf(b, " in the style of %q", name)
	}
	b.WriteString(".")
	if desc := clean(req.TemplateDescription); desc != "" {
		b.WriteString("\nStyle notes: ")
		b.WriteString(desc)
	}
}

func textPayload(raw json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("%w: text data must be a JSON string: %v", domain.ErrInvalidJob, err)
	}
	return text, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// clean applies NFC normalisation and trims surrounding space.
func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
