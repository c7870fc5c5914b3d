package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SirClappington/cronos/internal/domain"
)

// Memory is an in-process work queue and blacklist with the same semantics as
// Store. It backs local runs without Postgres and the package tests.
type Memory struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.Job
	seq       int64
	blacklist map[string]domain.BlacklistEntry
	cooldown  time.Duration
	now       func() time.Time
}

func NewMemory(cooldown time.Duration) *Memory {
	if cooldown <= 0 {
		cooldown = domain.DefaultBlacklistCooldown
	}
	return &Memory{
		jobs:      make(map[string]*domain.Job),
		blacklist: make(map[string]domain.BlacklistEntry),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for blacklist expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) InsertJob(_ context.Context, j *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	j.Seq = m.seq
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *Memory) CountPending(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, j := range m.jobs {
		if j.Status == domain.Pending {
			n++
		}
	}
	return n, nil
}

func (m *Memory) NextPending(_ context.Context, q PendingQuery) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []*domain.Job
	for _, j := range m.jobs {
		if j.Status != domain.Pending || j.IsPremium != q.Premium {
			continue
		}
		if q.Size == SmallOnly && !j.Small(q.SmallBelow) {
			continue
		}
		if q.Size == LargeOnly && j.Small(q.SmallBelow) {
			continue
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(a, b int) bool {
		x, y := candidates[a], candidates[b]
		if q.Order == ByPriority {
			if x.Priority != y.Priority {
				return x.Priority > y.Priority
			}
			if !x.CreatedAt.Equal(y.CreatedAt) {
				return x.CreatedAt.Before(y.CreatedAt)
			}
			return x.Seq < y.Seq
		}
		if !x.CreatedAt.Equal(y.CreatedAt) {
			return x.CreatedAt.Before(y.CreatedAt)
		}
		if x.Priority != y.Priority {
			return x.Priority > y.Priority
		}
		return x.Seq < y.Seq
	})
	return cloneJob(candidates[0]), nil
}

func (m *Memory) ClaimJob(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != domain.Pending {
		return false, nil
	}
	j.Status = domain.Processing
	j.StartedAt = &at
	return true, nil
}

func (m *Memory) SaveProgress(_ context.Context, id string, p domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.processing(id)
	if err != nil {
		return err
	}
	j.Progress = cloneProgress(p)
	return nil
}

func (m *Memory) CompleteJob(_ context.Context, id string, p domain.Progress, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.processing(id)
	if err != nil {
		return err
	}
	j.Progress = cloneProgress(p)
	j.Status = domain.Completed
	j.CompletedAt = &at
	return nil
}

func (m *Memory) FailJob(_ context.Context, id string, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.processing(id)
	if err != nil {
		return err
	}
	j.Status = domain.Failed
	j.Error = &reason
	j.CompletedAt = &at
	return nil
}

func (m *Memory) ReapStale(_ context.Context, cutoff, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == domain.Processing && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			reason := "worker invocation did not finish"
			j.Status = domain.Failed
			j.Error = &reason
			j.CompletedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *Memory) IsBlacklisted(_ context.Context, siren string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.blacklist[siren]
	return ok && e.Active(m.now(), m.cooldown), nil
}

func (m *Memory) AddToBlacklist(_ context.Context, e domain.BlacklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.blacklist[e.Siren] = e
	return nil
}

func (m *Memory) processing(id string) (*domain.Job, error) {
	j, ok := m.jobs[id]
	if !ok || j.Status != domain.Processing {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	c.Progress = cloneProgress(j.Progress)
	c.SearchParams.Companies = append([]domain.Company(nil), j.SearchParams.Companies...)
	return &c
}

func cloneProgress(p domain.Progress) domain.Progress {
	p.Results = append([]domain.Contact{}, p.Results...)
	p.ItemErrs = append([]domain.ItemError{}, p.ItemErrs...)
	return p
}
