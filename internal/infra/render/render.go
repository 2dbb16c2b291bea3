package render

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"contractseal/internal/domain"
	"contractseal/internal/usecase"
)

var _ usecase.Renderer = (*Renderer)(nil)

var placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Renderer fills a text template with contract fields and lays the result
// out as a PDF. Output is a pure function of template, contract id and
// fields, so rendering the same contract twice yields identical bytes.
type Renderer struct {
	Template string
	Title    string
}

func New(template string) *Renderer {
	return &Renderer{Template: template, Title: "Rental Contract"}
}

func (r *Renderer) Render(ctx context.Context, contractID string, fields map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values["contract_id"] = contractID

	tmpl := r.Template
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate(r.title(), fields)
	}
	text, missing := fill(tmpl, values)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing contract fields %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return writePDF(r.title()+" "+contractID, splitLines(text)), nil
}

func (r *Renderer) title() string {
	if r.Title == "" {
		return "Rental Contract"
	}
	return r.Title
}

// DefaultTemplate lists every field in key order under a heading.
func DefaultTemplate(title string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\nContract: {{contract_id}}\n\nTerms\n")
	for _, k := range keys {
		b.WriteString("- ")
		b.WriteString(k)
		b.WriteString(": {{")
		b.WriteString(k)
		b.WriteString("}}\n")
	}
	return b.String()
}

func fill(tmpl string, values map[string]string) (string, []string) {
	missingSet := map[string]struct{}{}
	out := placeholderRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		match := placeholderRE.FindStringSubmatch(m)
		if len(match) != 2 {
			return ""
		}
		if v, ok := values[match[1]]; ok {
			return v
		}
		missingSet[match[1]] = struct{}{}
		return ""
	})
	missing := make([]string, 0, len(missingSet))
	for k := range missingSet {
		missing = append(missing, k)
	}
	sort.Strings(missing)
	return out, missing
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
