// Package generator produces the text of one report section. Implementations
// call out to a generative content service (A2AGenerator) or render a local
// placeholder (TemplateGenerator).
package generator

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dusk-indust/reportgen/internal/a2a"
	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/upstream"
)

// Generator turns a section request into section content.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is everything a generator gets for one section.
type Request struct {
	Section   catalog.SectionDefinition
	SubjectID string
	Variant   string
	Payload   upstream.Payload

	// Upstream maps the names of completed dependency sections to their
	// content. Dependencies that did not complete are absent.
	Upstream map[string]string
}

// Kind classifies a section generation failure.
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindServiceUnavailable Kind = "service_unavailable"
	KindOther              Kind = "other"

	// KindStalled is recorded by the reaper, never returned by a generator.
	KindStalled Kind = "stalled"
)

// UnavailableMessage is shown to users when the content service is down.
const UnavailableMessage = "the content service is temporarily unavailable; please retry this section shortly"

// Error is a classified generation failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Compile-time check.
var _ error = (*Error)(nil)

// Error renders the message stored on the failed section. Timeouts and
// outages are prefixed so the two stay distinguishable from provider errors.
func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "timeout: " + e.Message
	case KindServiceUnavailable:
		return "service unavailable: " + e.Message
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies any error. Untyped errors are KindOther.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindOther
}

// UserMessage returns the text to show a user for a failed section.
func UserMessage(err error) string {
	if KindOf(err) == KindServiceUnavailable {
		return UnavailableMessage
	}
	return err.Error()
}

// Classify wraps err in an *Error according to its transport-level cause.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}

	var httpErr *a2a.HTTPError
	if errors.As(err, &httpErr) && httpErr.Unavailable() {
		return &Error{Kind: KindServiceUnavailable, Message: UnavailableMessage, Err: err}
	}

	var rpcErr *a2a.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == a2a.ErrCodeServiceUnavailable {
		return &Error{Kind: KindServiceUnavailable, Message: UnavailableMessage, Err: err}
	}

	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		return &Error{Kind: KindTimeout, Message: err.Error(), Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindServiceUnavailable, Message: UnavailableMessage, Err: err}
	}

	return &Error{Kind: KindOther, Message: err.Error(), Err: err}
}

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

// SectionTask is the structured part sent to a generation agent.
type SectionTask struct {
	SectionID    int               `json:"section_id"`
	Name         string            `json:"name"`
	Title        string            `json:"title"`
	Dependencies []int             `json:"dependencies,omitempty"`
	SubjectID    string            `json:"subject_id"`
	Variant      string            `json:"variant"`
	Payload      upstream.Payload  `json:"payload,omitempty"`
	Upstream     map[string]string `json:"upstream,omitempty"`
}

// NewSectionTask converts a Request into its wire form.
func NewSectionTask(req Request) SectionTask {
	return SectionTask{
		SectionID:    req.Section.ID,
		Name:         req.Section.Name,
		Title:        req.Section.Title,
		Dependencies: req.Section.Dependencies,
		SubjectID:    req.SubjectID,
		Variant:      req.Variant,
		Payload:      req.Payload,
		Upstream:     req.Upstream,
	}
}

// Request converts the wire form back into a Request.
func (t SectionTask) Request() Request {
	return Request{
		Section: catalog.SectionDefinition{
			ID:           t.SectionID,
			Name:         t.Name,
			Title:        t.Title,
			Dependencies: t.Dependencies,
		},
		SubjectID: t.SubjectID,
		Variant:   t.Variant,
		Payload:   t.Payload,
		Upstream:  t.Upstream,
	}
}

func describe(req Request) string {
	return fmt.Sprintf("Write the %q section (%s) of the %s report for subject %s.",
		req.Section.Title, req.Section.Name, req.Variant, req.SubjectID)
}
