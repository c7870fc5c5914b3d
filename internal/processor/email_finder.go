// Package processor resolves a contact email for one company through the
// email-discovery service and blacklists companies it cannot resolve.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/cronos/internal/domain"
)

var errNoEmail = errors.New("no email found")

type BlacklistWriter interface {
	AddToBlacklist(ctx context.Context, e domain.BlacklistEntry) error
}

// EmailFinder calls the email-discovery endpoint once per company.
type EmailFinder struct {
	url       string
	client    *http.Client
	blacklist BlacklistWriter
	log       *zap.Logger
	now       func() time.Time
}

func NewEmailFinder(url string, timeout time.Duration, bl BlacklistWriter, log *zap.Logger) *EmailFinder {
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailFinder{
		url:       url,
		client:    &http.Client{Timeout: timeout},
		blacklist: bl,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type lookupRequest struct {
	Siren   string `json:"siren"`
	Name    string `json:"company_name"`
	City    string `json:"city,omitempty"`
	Website string `json:"website,omitempty"`
}

type lookupResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    *struct {
		Email   string `json:"email"`
		Website string `json:"website"`
		Source  string `json:"source"`
	} `json:"data,omitempty"`
}

func (f *EmailFinder) Process(ctx context.Context, c domain.Company) domain.Outcome {
	if c.Siren == "" {
		return f.fail(ctx, c, domain.ReasonInvalidCompany, errors.New("company has no siren"))
	}

	body, err := json.Marshal(lookupRequest{Siren: c.Siren, Name: c.Name, City: c.City, Website: c.Website})
	if err != nil {
		return f.fail(ctx, c, domain.ReasonInvalidCompany, errors.Wrap(err, "encode lookup"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return f.fail(ctx, c, domain.ReasonAPIError, errors.Wrap(err, "build lookup request"))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fail(ctx, c, domain.ReasonAPIError, errors.Wrap(err, "email finder unreachable"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		reason := statusReason(resp.StatusCode)
		if reason == domain.ReasonInvalidCompany {
			return f.fail(ctx, c, reason, errors.Errorf("email finder rejected company: %d", resp.StatusCode))
		}
		return f.fail(ctx, c, reason, errors.Errorf("email finder returned %d", resp.StatusCode))
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return f.fail(ctx, c, domain.ReasonAPIError, errors.Wrap(err, "decode lookup response"))
	}
	if !out.Success || out.Data == nil || out.Data.Email == "" {
		err := errNoEmail
		if out.Error != "" {
			err = errors.New(out.Error)
		}
		return f.fail(ctx, c, domain.ReasonNoEmailFound, err)
	}

	website := out.Data.Website
	if website == "" {
		website = c.Website
	}
	return domain.Found{Contact: domain.Contact{
		Siren:   c.Siren,
		Name:    c.Name,
		Email:   out.Data.Email,
		Website: website,
		Source:  out.Data.Source,
	}}
}

// statusReason classifies an error status. Only 400 and 422 judge the company
// itself; anything else points at the service or its configuration.
func statusReason(code int) domain.Reason {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ReasonInvalidCompany
	default:
		return domain.ReasonAPIError
	}
}

// fail blacklists the company for reason and returns the failed outcome. A
// blacklist write error is logged only; the outcome stays the same.
func (f *EmailFinder) fail(ctx context.Context, c domain.Company, reason domain.Reason, err error) domain.Outcome {
	if c.Siren != "" && f.blacklist != nil {
		entry := domain.BlacklistEntry{
			Siren:     c.Siren,
			Name:      c.Name,
			Reason:    reason,
			Permanent: reason.Permanent(),
			CreatedAt: f.now(),
		}
		if berr := f.blacklist.AddToBlacklist(context.WithoutCancel(ctx), entry); berr != nil {
			f.log.Warn("blacklist write failed", zap.String("siren", c.Siren), zap.Error(berr))
		}
	}
	f.log.Debug("company lookup failed",
		zap.String("siren", c.Siren), zap.String("reason", string(reason)), zap.Error(err))
	return domain.Unresolved{Reason: reason, Err: err}
}
