package domain

import "time"

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

// Terminal reports whether counters and status are frozen.
func (s Status) Terminal() bool { return s == Completed || s == Failed }

// Company is one target of a search job, as returned by the business registry.
type Company struct {
	Siren     string `json:"siren"`
	Name      string `json:"name"`
	City      string `json:"city,omitempty"`
	Website   string `json:"website,omitempty"`
	NafCode   string `json:"naf_code,omitempty"`
	Headcount string `json:"headcount,omitempty"`
}

type SearchParams struct {
	Companies []Company `json:"companies"`
}

// Contact is what a successful lookup resolves for a company.
type Contact struct {
	Siren   string `json:"siren"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Website string `json:"website,omitempty"`
	Source  string `json:"source,omitempty"`
}

type ItemError struct {
	Siren string `json:"siren"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Progress is the in-flight accumulator flushed to the queue after every item.
type Progress struct {
	Processed int         `json:"processed_count"`
	Success   int         `json:"success_count"`
	Errors    int         `json:"error_count"`
	Skipped   int         `json:"skipped_count"`
	Results   []Contact   `json:"results"`
	ItemErrs  []ItemError `json:"errors"`
}

type Job struct {
	ID           string       `json:"id"`
	Seq          int64        `json:"-"`
	UserID       string       `json:"user_id"`
	Status       Status       `json:"status"`
	IsPremium    bool         `json:"is_premium"`
	Priority     int          `json:"priority"`
	Total        int          `json:"total_count"`
	Progress
	SearchParams SearchParams `json:"search_params"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Error        *string      `json:"failure_reason,omitempty"`
}

// Small reports whether the job belongs to the small class of the alternation policy.
func (j *Job) Small(threshold int) bool { return j.Total < threshold }

// NewJob builds a pending job whose total count is fixed by its target list.
func NewJob(id, userID string, premium bool, priority int, companies []Company, now time.Time) *Job {
	return &Job{
		ID:           id,
		UserID:       userID,
		Status:       Pending,
		IsPremium:    premium,
		Priority:     priority,
		Total:        len(companies),
		SearchParams: SearchParams{Companies: companies},
		Progress:     Progress{Results: []Contact{}, ItemErrs: []ItemError{}},
		CreatedAt:    now,
	}
}
