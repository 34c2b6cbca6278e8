package mocks

import (
	"context"
	"sync"

	"vfast/infras/otel"
)

// Recorder is an otel.Otel that keeps the errors traced on each named scope.
type Recorder struct {
	mu     sync.Mutex
	errors map[string][]error
}

func NewRecorder() *Recorder {
	return &Recorder{errors: map[string][]error{}}
}

// NewScope implements otel.Otel.
func (r *Recorder) NewScope(ctx context.Context, _, name string) (context.Context, otel.Scope) {
	return ctx, &recordingScope{Scope: NewScope(), name: name, recorder: r}
}

// Errors returns the errors traced on the scope called name.
func (r *Recorder) Errors(name string) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errors[name]...)
}

type recordingScope struct {
	otel.Scope
	name     string
	recorder *Recorder
}

func (s *recordingScope) TraceError(err error) {
	s.recorder.mu.Lock()
	defer s.recorder.mu.Unlock()

	s.recorder.errors[s.name] = append(s.recorder.errors[s.name], err)
}

func (s *recordingScope) TraceIfError(err error) {
	if err != nil {
		s.TraceError(err)
	}
}
