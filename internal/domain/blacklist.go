package domain

import "time"

// DefaultBlacklistCooldown is how long a temporary entry excludes its company.
// It applies to every reason.
const DefaultBlacklistCooldown = 24 * time.Hour

type Reason string

const (
	ReasonNoEmailFound   Reason = "no_email_found"
	ReasonAPIError       Reason = "api_error"
	ReasonInvalidCompany Reason = "invalid_company"
)

// Permanent is the default permanence used by the processor for each reason.
// API errors are transient, the others describe the company itself.
func (r Reason) Permanent() bool { return r != ReasonAPIError }

type BlacklistEntry struct {
	Siren     string    `json:"siren"`
	Name      string    `json:"company_name"`
	Reason    Reason    `json:"reason"`
	Permanent bool      `json:"permanent"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the entry still excludes its company at now.
func (e BlacklistEntry) Active(now time.Time, cooldown time.Duration) bool {
	if e.Permanent {
		return true
	}
	return now.Before(e.CreatedAt.Add(cooldown))
}
