package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dusk-indust/reportgen/internal/store"
)

func records(statuses ...store.SectionStatus) []store.SectionRecord {
	out := make([]store.SectionRecord, len(statuses))
	for i, st := range statuses {
		out[i] = store.SectionRecord{SectionID: i + 1, Status: st}
	}
	return out
}

func TestAggregate(t *testing.T) {
	const (
		p = store.SectionPending
		g = store.SectionGenerating
		c = store.SectionCompleted
		f = store.SectionFailed
	)

	tests := []struct {
		name       string
		records    []store.SectionRecord
		status     ProgressStatus
		percentage int
	}{
		{"no records", nil, ProgressPending, 0},
		{"all pending", records(p, p, p), ProgressPending, 0},
		{"all completed", records(c, c, c), ProgressCompleted, 100},
		{"three of five with two failed", records(c, c, c, f, f), ProgressPartialFailure, 60},
		{"failed and generating with completions", records(c, f, g), ProgressPartialFailure, 33},
		{"all failed", records(f, f), ProgressFailed, 0},
		{"failed while another generates", records(f, g, p), ProgressGenerating, 0},
		{"generating", records(c, g, p), ProgressGenerating, 33},
		{"some completed rest pending", records(c, c, p), ProgressInProgress, 67},
		{"failed with pending, nothing generating", records(f, p), ProgressFailed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Aggregate(tt.records)
			assert.Equal(t, tt.status, s.Status)
			assert.Equal(t, tt.percentage, s.Percentage)
			assert.Equal(t, len(tt.records), s.Total)
			assert.Equal(t, s.Total, s.Completed+s.Failed+s.Generating+s.Pending)
		})
	}
}

func TestAggregate_IsPure(t *testing.T) {
	in := records(store.SectionCompleted, store.SectionFailed, store.SectionPending)
	first := Aggregate(in)
	assert.Equal(t, first, Aggregate(in))
	assert.Equal(t, store.SectionFailed, in[1].Status)
}

func TestJobStatus(t *testing.T) {
	const (
		p = store.SectionPending
		c = store.SectionCompleted
		f = store.SectionFailed
	)
	assert.Equal(t, store.JobCompleted, jobStatus(Aggregate(records(c, c))))
	assert.Equal(t, store.JobPartialFailure, jobStatus(Aggregate(records(c, f))))
	assert.Equal(t, store.JobFailed, jobStatus(Aggregate(records(f, f))))
	assert.Equal(t, store.JobPartialFailure, jobStatus(Aggregate(records(c, p))), "interrupted run")
	assert.Equal(t, store.JobPending, jobStatus(Aggregate(records(p))))
}
