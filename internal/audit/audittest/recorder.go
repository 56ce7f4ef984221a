// Package audittest содержит потокобезопасный in-memory audit.Logger для тестов.
package audittest

import (
	"sync"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/audit"
)

type Recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	actions []audit.ActionRecord
}

func (r *Recorder) Log(e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *Recorder) LogAction(a audit.ActionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func (r *Recorder) Entries() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

func (r *Recorder) Actions() []audit.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.ActionRecord(nil), r.actions...)
}

// BySeverity отбирает записи журнала с заданной важностью
func (r *Recorder) BySeverity(s audit.Severity) []audit.Entry {
	var out []audit.Entry
	for _, e := range r.Entries() {
		if e.Severity == s {
			out = append(out, e)
		}
	}
	return out
}
