package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/SirClappington/cronos/internal/domain"
)

// Store is the Postgres-backed work queue and blacklist.
type Store struct {
	db       *pgxpool.Pool
	cooldown time.Duration
}

func New(db *pgxpool.Pool, cooldown time.Duration) *Store {
	if cooldown <= 0 {
		cooldown = domain.DefaultBlacklistCooldown
	}
	return &Store{db: db, cooldown: cooldown}
}

const jobColumns = `id, seq, user_id, status, is_premium, priority, total_count,
processed_count, success_count, error_count, skipped_count,
search_params, results, errors, created_at, started_at, completed_at, error_message`

// InsertJob persists a new pending job (source of truth).
func (s *Store) InsertJob(ctx context.Context, j *domain.Job) error {
	params, err := json.Marshal(j.SearchParams)
	if err != nil {
		return errors.Wrap(err, "marshal search params")
	}
	err = s.db.QueryRow(ctx, `insert into job_queue(
id, user_id, status, is_premium, priority, total_count, search_params, created_at
) values ($1,$2,'pending',$3,$4,$5,$6,$7) returning seq`,
		j.ID, j.UserID, j.IsPremium, j.Priority, j.Total, params, j.CreatedAt,
	).Scan(&j.Seq)
	return errors.Wrap(err, "insert job")
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `select `+jobColumns+` from job_queue where id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return j, errors.Wrapf(err, "get job %s", id)
}

func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `select count(*) from job_queue where status = 'pending'`).Scan(&n)
	return n, errors.Wrap(err, "count pending jobs")
}

// NextPending returns the first pending job matching q, or nil when none does.
func (s *Store) NextPending(ctx context.Context, q PendingQuery) (*domain.Job, error) {
	where := []string{"status = 'pending'", "is_premium = $1"}
	args := []any{q.Premium}
	switch q.Size {
	case SmallOnly:
		args = append(args, q.SmallBelow)
		where = append(where, fmt.Sprintf("total_count < $%d", len(args)))
	case LargeOnly:
		args = append(args, q.SmallBelow)
		where = append(where, fmt.Sprintf("total_count >= $%d", len(args)))
	}
	order := "priority desc, created_at asc, seq asc"
	if q.Order == ByAge {
		order = "created_at asc, priority desc, seq asc"
	}

	row := s.db.QueryRow(ctx, `select `+jobColumns+` from job_queue
where `+strings.Join(where, " and ")+`
order by `+order+` limit 1`, args...)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, errors.Wrap(err, "select next pending job")
}

// ClaimJob moves a job from pending to processing. It reports false when the job
// was no longer pending, i.e. another invocation claimed it first.
func (s *Store) ClaimJob(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `update job_queue
   set status = 'processing', started_at = $2
 where id = $1 and status = 'pending'`, id, at)
	if err != nil {
		return false, errors.Wrapf(err, "claim job %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SaveProgress(ctx context.Context, id string, p domain.Progress) error {
	return s.writeProgress(ctx, id, p, `update job_queue
   set processed_count = $2, success_count = $3, error_count = $4, skipped_count = $5,
       results = $6, errors = $7
 where id = $1 and status = 'processing'`)
}

func (s *Store) CompleteJob(ctx context.Context, id string, p domain.Progress, at time.Time) error {
	return s.writeProgress(ctx, id, p, `update job_queue
   set processed_count = $2, success_count = $3, error_count = $4, skipped_count = $5,
       results = $6, errors = $7, status = 'completed', completed_at = $8
 where id = $1 and status = 'processing'`, at)
}

func (s *Store) writeProgress(ctx context.Context, id string, p domain.Progress, sql string, extra ...any) error {
	results, err := json.Marshal(p.Results)
	if err != nil {
		return errors.Wrap(err, "marshal results")
	}
	itemErrs, err := json.Marshal(p.ItemErrs)
	if err != nil {
		return errors.Wrap(err, "marshal errors")
	}
	args := append([]any{id, p.Processed, p.Success, p.Errors, p.Skipped, results, itemErrs}, extra...)
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return errors.Wrapf(err, "write progress for job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "processing job %s", id)
	}
	return nil
}

func (s *Store) FailJob(ctx context.Context, id string, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `update job_queue
   set status = 'failed', error_message = $2, completed_at = $3
 where id = $1 and status = 'processing'`, id, reason, at)
	if err != nil {
		return errors.Wrapf(err, "fail job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "processing job %s", id)
	}
	return nil
}

// ReapStale fails jobs left in processing since before cutoff, typically by an
// invocation the host killed. They are never put back to pending.
func (s *Store) ReapStale(ctx context.Context, cutoff, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `update job_queue
   set status = 'failed', error_message = 'worker invocation did not finish', completed_at = $2
 where status = 'processing' and started_at < $1`, cutoff, at)
	if err != nil {
		return 0, errors.Wrap(err, "reap stale jobs")
	}
	return tag.RowsAffected(), nil
}

// IsBlacklisted calls the is_company_blacklisted database function.
func (s *Store) IsBlacklisted(ctx context.Context, siren string) (bool, error) {
	var hit bool
	err := s.db.QueryRow(ctx, `select is_company_blacklisted($1, make_interval(secs => $2))`,
		siren, s.cooldown.Seconds()).Scan(&hit)
	return hit, errors.Wrapf(err, "check blacklist for %s", siren)
}

// AddToBlacklist calls the add_to_blacklist database function; last write wins.
func (s *Store) AddToBlacklist(ctx context.Context, e domain.BlacklistEntry) error {
	_, err := s.db.Exec(ctx, `select add_to_blacklist($1, $2, $3, $4)`,
		e.Siren, e.Name, string(e.Reason), e.Permanent)
	return errors.Wrapf(err, "blacklist %s", e.Siren)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		j                         domain.Job
		status                    string
		params, results, itemErrs []byte
	)
	if err := row.Scan(&j.ID, &j.Seq, &j.UserID, &status, &j.IsPremium, &j.Priority, &j.Total,
		&j.Processed, &j.Success, &j.Errors, &j.Skipped,
		&params, &results, &itemErrs, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.Error); err != nil {
		return nil, err
	}
	j.Status = domain.Status(status)
	if err := json.Unmarshal(params, &j.SearchParams); err != nil {
		return nil, errors.Wrap(err, "decode search params")
	}
	if err := json.Unmarshal(results, &j.Results); err != nil {
		return nil, errors.Wrap(err, "decode results")
	}
	if err := json.Unmarshal(itemErrs, &j.ItemErrs); err != nil {
		return nil, errors.Wrap(err, "decode errors")
	}
	return &j, nil
}
