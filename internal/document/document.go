// Package document assembles completed sections into a report and renders it
// in the supported output formats.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/store"
)

// Format selects how a document is rendered.
type Format string

const (
	FormatStructured Format = "structured"
	FormatPlain      Format = "plain"
	FormatMarkdown   Format = "markdown"
)

// ParseFormat validates a format name. Empty means structured.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatStructured:
		return FormatStructured, nil
	case FormatPlain:
		return FormatPlain, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("document: unknown format %q (want structured, plain or markdown)", s)
	}
}

// Document is a finished report.
type Document struct {
	SubjectID   string    `json:"subjectId"`
	Variant     string    `json:"variant"`
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generatedAt"`
	Sections    []Section `json:"sections"`
}

// Section is one rendered part of a Document.
type Section struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Build collects the completed sections of a job in catalog order.
// GeneratedAt is the latest section completion time.
func Build(job *store.Job, cat *catalog.Catalog, records []store.SectionRecord) *Document {
	byID := make(map[int]store.SectionRecord, len(records))
	for _, r := range records {
		byID[r.SectionID] = r
	}

	doc := &Document{
		SubjectID: job.SubjectID,
		Variant:   job.Variant,
		Title:     job.Variant,
	}
	if v, ok := cat.Variant(job.Variant); ok && v.Title != "" {
		doc.Title = v.Title
	}

	for _, def := range cat.Sections() {
		rec, ok := byID[def.ID]
		if !ok || rec.Status != store.SectionCompleted {
			continue
		}
		doc.Sections = append(doc.Sections, Section{
			ID:      def.ID,
			Name:    def.Name,
			Title:   def.Title,
			Content: rec.Content,
		})
		if rec.CompletedAt != nil && rec.CompletedAt.After(doc.GeneratedAt) {
			doc.GeneratedAt = *rec.CompletedAt
		}
	}
	return doc
}

// Render writes the document in the requested format.
func Render(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatStructured, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("document: encode: %w", err)
		}
		return data, nil
	case FormatPlain:
		return renderPlain(doc), nil
	case FormatMarkdown:
		return renderMarkdown(doc), nil
	default:
		return nil, fmt.Errorf("document: unknown format %q", format)
	}
}

// ContentType is the MIME type of a rendered format.
func ContentType(format Format) string {
	switch format {
	case FormatPlain:
		return "text/plain; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json"
	}
}

func renderPlain(doc *Document) []byte {
	var buf bytes.Buffer
	title := fmt.Sprintf("%s: %s", doc.Title, doc.SubjectID)
	buf.WriteString(title + "\n")
	buf.WriteString(strings.Repeat("=", len(title)) + "\n")

	for _, s := range doc.Sections {
		buf.WriteString("\n" + s.Title + "\n")
		buf.WriteString(strings.Repeat("-", len(s.Title)) + "\n\n")
		buf.WriteString(stripHeading(s.Content, s.Title))
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func renderMarkdown(doc *Document) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s: %s\n", doc.Title, doc.SubjectID)
	if !doc.GeneratedAt.IsZero() {
		fmt.Fprintf(&buf, "\n_Generated %s_\n", doc.GeneratedAt.UTC().Format(time.RFC3339))
	}
	for _, s := range doc.Sections {
		fmt.Fprintf(&buf, "\n## %s\n\n", s.Title)
		buf.WriteString(stripHeading(s.Content, s.Title))
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// stripHeading drops a leading markdown heading that repeats the section
// title, since the renderers emit their own.
func stripHeading(content, title string) string {
	content = strings.TrimSpace(content)
	first, rest, _ := strings.Cut(content, "\n")
	heading := strings.TrimSpace(strings.TrimLeft(first, "#"))
	if strings.HasPrefix(first, "#") && strings.EqualFold(heading, title) {
		return strings.TrimSpace(rest)
	}
	return content
}
