package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SirClappington/cronos/internal/domain"
	"github.com/SirClappington/cronos/internal/storage"
)

var epoch = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

// fakeProcessor finds an email for every company unless told otherwise.
type fakeProcessor struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]domain.Reason
}

func (p *fakeProcessor) Process(_ context.Context, c domain.Company) domain.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c.Siren)
	if reason, ok := p.failures[c.Siren]; ok {
		return domain.Unresolved{Reason: reason, Err: errors.New(string(reason))}
	}
	return domain.Found{Contact: domain.Contact{Siren: c.Siren, Name: c.Name, Email: "contact@" + c.Siren + ".fr"}}
}

func (p *fakeProcessor) called(siren string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.calls {
		if s == siren {
			return true
		}
	}
	return false
}

// recordingPacer records waits instead of sleeping.
type recordingPacer struct {
	delay time.Duration
	waits []time.Duration
}

func (p *recordingPacer) Wait(_ context.Context, _ BatchReport) error {
	p.waits = append(p.waits, p.delay)
	return nil
}

// clock advances one second per reading.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func companies(prefix string, n int) []domain.Company {
	out := make([]domain.Company, n)
	for i := range out {
		out[i] = domain.Company{Siren: fmt.Sprintf("%s%03d", prefix, i), Name: fmt.Sprintf("%s company %d", prefix, i)}
	}
	return out
}

func enqueue(t *testing.T, q *storage.Memory, id string, premium bool, priority, total int, created time.Time) *domain.Job {
	t.Helper()
	j := domain.NewJob(id, "user-"+id, premium, priority, companies(id, total), created)
	if err := q.InsertJob(context.Background(), j); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	return j
}

func newTestDispatcher(q *storage.Memory, p Processor, pacer Pacer) *Dispatcher {
	c := &clock{now: epoch}
	return New(q, q, p, Options{Pacer: pacer, Now: c.Now})
}
