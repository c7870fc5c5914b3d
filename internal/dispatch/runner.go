package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SirClappington/cronos/internal/domain"
)

// RunJob claims job and processes its companies in batches, flushing progress
// after every company. A job already completed or failed is left untouched.
//
// Item failures are recorded on the job and never stop it. Any other error
// (store, blacklist lookup, cancellation) fails the job and is returned.
func (d *Dispatcher) RunJob(ctx context.Context, job *domain.Job) error {
	log := d.log.With(zap.String("job_id", job.ID))
	if job.Status.Terminal() {
		log.Debug("job already finished", zap.String("status", string(job.Status)))
		return nil
	}

	ok, err := d.queue.ClaimJob(ctx, job.ID, d.now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrJobClaimed
	}
	log.Info("job started",
		zap.Int("total", job.Total), zap.Bool("premium", job.IsPremium), zap.String("user_id", job.UserID))

	p, err := d.run(ctx, job, log)
	if err != nil {
		log.Error("job failed", zap.Error(err), zap.Int("processed", p.Processed))
		if ferr := d.queue.FailJob(context.WithoutCancel(ctx), job.ID, err.Error(), d.now()); ferr != nil {
			err = multierr.Append(err, ferr)
		}
		return err
	}
	log.Info("job completed",
		zap.Int("success", p.Success), zap.Int("errors", p.Errors), zap.Int("skipped", p.Skipped))
	return nil
}

func (d *Dispatcher) run(ctx context.Context, job *domain.Job, log *zap.Logger) (domain.Progress, error) {
	p := domain.Progress{Results: []domain.Contact{}, ItemErrs: []domain.ItemError{}}

	companies := job.SearchParams.Companies
	if len(companies) > job.Total {
		companies = companies[:job.Total]
	}
	batches := partition(companies, d.batchSize)

	for i, batch := range batches {
		report := BatchReport{Index: i, Items: len(batch)}
		for _, c := range batch {
			if err := ctx.Err(); err != nil {
				return p, err
			}
			apiErr, err := d.processOne(ctx, c, &p)
			if err != nil {
				return p, err
			}
			if apiErr {
				report.APIErrors++
			}
			p.Processed++
			if err := d.queue.SaveProgress(ctx, job.ID, p); err != nil {
				return p, errors.Wrap(err, "save progress")
			}
		}
		log.Debug("batch done", zap.Int("batch", i+1), zap.Int("of", len(batches)), zap.Int("processed", p.Processed))

		if i < len(batches)-1 {
			if err := d.pacer.Wait(ctx, report); err != nil {
				return p, errors.Wrap(err, "wait between batches")
			}
		}
	}

	if err := d.queue.CompleteJob(ctx, job.ID, p, d.now()); err != nil {
		return p, errors.Wrap(err, "complete job")
	}
	return p, nil
}

// processOne records the outcome of one company in p. It reports whether the
// company failed on an API error.
func (d *Dispatcher) processOne(ctx context.Context, c domain.Company, p *domain.Progress) (bool, error) {
	hit, err := d.blacklist.IsBlacklisted(ctx, c.Siren)
	if err != nil {
		return false, errors.Wrap(err, "check blacklist")
	}
	if hit {
		p.Skipped++
		return false, nil
	}

	switch o := d.processor.Process(ctx, c).(type) {
	case domain.Found:
		p.Results = append(p.Results, o.Contact)
		p.Success++
	case domain.Unresolved:
		p.ItemErrs = append(p.ItemErrs, domain.ItemError{Siren: c.Siren, Name: c.Name, Error: o.Error()})
		p.Errors++
		return o.Reason == domain.ReasonAPIError, nil
	default:
		return false, errors.Errorf("processor returned unknown outcome %T", o)
	}
	return false, nil
}

func partition(companies []domain.Company, size int) [][]domain.Company {
	var out [][]domain.Company
	for start := 0; start < len(companies); start += size {
		end := start + size
		if end > len(companies) {
			end = len(companies)
		}
		out = append(out, companies[start:end])
	}
	return out
}
