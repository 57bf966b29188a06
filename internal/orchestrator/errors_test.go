package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dusk-indust/reportgen/internal/upstream"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: alice/full", ErrAlreadyExists), CodeAlreadyExists},
		{fmt.Errorf("%w: alice/full", ErrAlreadyInProgress), CodeAlreadyInProgress},
		{fmt.Errorf("%w: %q", upstream.ErrMissingUpstreamData, "alice"), CodeMissingUpstreamData},
		{ErrJobNotFound, CodeNotFound},
		{ErrSectionNotFound, CodeNotFound},
		{ErrUnknownSection, CodeInvalidRequest},
		{ErrUnknownVariant, CodeInvalidRequest},
		{ErrInvalidRequest, CodeInvalidRequest},
		{&NotCompleteError{Percent: 40}, CodeNotComplete},
		{errors.New("disk on fire"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestNotCompleteError(t *testing.T) {
	err := fmt.Errorf("get document: %w", &NotCompleteError{Percent: 60})
	assert.ErrorIs(t, err, ErrNotComplete)
	assert.Equal(t, "get document: document not yet complete: 60% done", err.Error())
}
