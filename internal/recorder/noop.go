package recorder

import "Divvy/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordEvent(_ *model.Event) error      { return nil }
func (n *NoopRecorder) History(_ int) ([]EventRecord, error)  { return nil, nil }
func (n *NoopRecorder) Cycle(c uint64) (*CycleSummary, error) { return &CycleSummary{Cycle: c}, nil }
func (n *NoopRecorder) Close() error                          { return nil }
