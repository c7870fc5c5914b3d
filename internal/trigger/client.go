// Package trigger invokes the job worker endpoint the way an external cron would.
package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const noPendingJobs = "No pending jobs"

type Response struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Idle reports whether the worker found nothing to do.
func (r Response) Idle() bool { return r.Success && r.JobID == "" && r.Message == noPendingJobs }

type Client struct {
	url    string
	secret []byte
	http   *http.Client
	log    *zap.Logger
}

func NewClient(url string, secret []byte, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{url: url, secret: secret, http: &http.Client{Timeout: timeout}, log: log}
}

// Invoke posts once to the worker endpoint. A non-2xx answer is returned as an
// error carrying the envelope's message.
func (c *Client) Invoke(ctx context.Context) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, nil)
	if err != nil {
		return Response{}, errors.Wrap(err, "build worker request")
	}
	if len(c.secret) > 0 {
		tok, err := c.token()
		if err != nil {
			return Response{}, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, errors.Wrap(err, "invoke worker")
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, errors.Wrapf(err, "decode worker response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return out, errors.Errorf("worker returned %d: %s", resp.StatusCode, out.Error)
	}
	return out, nil
}

// Drain invokes the worker until it reports no pending jobs, a call fails, or
// limit invocations were made. It returns how many jobs were run.
func (c *Client) Drain(ctx context.Context, limit int) (int, error) {
	ran := 0
	for ran < limit {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		resp, err := c.Invoke(ctx)
		if err != nil {
			return ran, err
		}
		if resp.Idle() {
			return ran, nil
		}
		ran++
		c.log.Info("worker ran job", zap.String("job_id", resp.JobID), zap.String("message", resp.Message))
	}
	return ran, nil
}

func (c *Client) token() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "cronos-scheduler",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	return tok, errors.Wrap(err, "sign worker token")
}
