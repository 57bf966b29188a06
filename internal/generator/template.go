package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Compile-time check.
var _ Generator = (*TemplateGenerator)(nil)

// TemplateGenerator renders a placeholder section with TODO markers. It is
// used when no content service is configured and backs the local agent.
type TemplateGenerator struct{}

// Generate never fails unless ctx is done.
func (TemplateGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", req.Section.Title)
	fmt.Fprintf(&sb, "> Generated in template mode for subject %s (%s report).\n\n", req.SubjectID, req.Variant)

	if keys := payloadKeys(req); len(keys) > 0 {
		sb.WriteString("Source fields: ")
		sb.WriteString(strings.Join(keys, ", "))
		sb.WriteString(".\n\n")
	}

	if names := upstreamNames(req); len(names) > 0 {
		sb.WriteString("Builds on: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(".\n\n")
	}

	sb.WriteString("<!-- TODO: Complete this section -->\n")
	return sb.String(), nil
}

func payloadKeys(req Request) []string {
	keys := make([]string, 0, len(req.Payload))
	for k := range req.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func upstreamNames(req Request) []string {
	names := make([]string, 0, len(req.Upstream))
	for name := range req.Upstream {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
