package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SirClappington/cronos/internal/dispatch"
	"github.com/SirClappington/cronos/internal/domain"
	"github.com/SirClappington/cronos/internal/storage"
)

type alwaysFound struct{}

func (alwaysFound) Process(_ context.Context, c domain.Company) domain.Outcome {
	return domain.Found{Contact: domain.Contact{Siren: c.Siren, Name: c.Name, Email: "rh@example.fr"}}
}

type stubDispatcher struct{ err error }

func (s stubDispatcher) Dispatch(context.Context) (dispatch.Result, error) {
	return dispatch.Result{}, s.err
}

type recordingWaker struct{ ids []string }

func (w *recordingWaker) Wake(_ context.Context, id string) error {
	w.ids = append(w.ids, id)
	return nil
}

func newServer(mem *storage.Memory) Server {
	d := dispatch.New(mem, mem, alwaysFound{}, dispatch.Options{Pacer: dispatch.NewFixedPacer(0)})
	return Server{Jobs: mem, Dispatcher: d}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestWorker_NoPendingJobs(t *testing.T) {
	router := newServer(storage.NewMemory(0)).Router()

	req := httptest.NewRequest("POST", "/functions/v1/job-worker", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success || env.Message != "No pending jobs" || env.JobID != "" {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestWorker_RunsJob(t *testing.T) {
	mem := storage.NewMemory(0)
	j := domain.NewJob("job-1", "user-1", false, 0, []domain.Company{{Siren: "1", Name: "A"}, {Siren: "2", Name: "B"}}, time.Now())
	mem.InsertJob(context.Background(), j)
	router := newServer(mem).Router()

	req := httptest.NewRequest("POST", "/functions/v1/job-worker", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success || env.JobID != "job-1" || env.Message == "" {
		t.Errorf("unexpected envelope %+v", env)
	}
	got, _ := mem.GetJob(context.Background(), "job-1")
	if got.Status != domain.Completed || got.Success != 2 {
		t.Errorf("expected completed job, got %s %+v", got.Status, got.Progress)
	}
}

func TestWorker_ControlErrorIs500(t *testing.T) {
	router := Server{Jobs: storage.NewMemory(0), Dispatcher: stubDispatcher{err: errors.New("store unreachable")}}.Router()

	req := httptest.NewRequest("POST", "/functions/v1/job-worker", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error != "store unreachable" {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestWorker_LockHeldIs409(t *testing.T) {
	router := Server{Jobs: storage.NewMemory(0), Dispatcher: stubDispatcher{err: domain.ErrLockHeld}}.Router()

	req := httptest.NewRequest("POST", "/functions/v1/job-worker", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestWorker_Preflight(t *testing.T) {
	router := newServer(storage.NewMemory(0)).Router()

	req := httptest.NewRequest("OPTIONS", "/functions/v1/job-worker", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS allow origin header")
	}
}

func TestWorker_RequiresToken(t *testing.T) {
	secret := []byte("s3cret")
	srv := newServer(storage.NewMemory(0))
	srv.JWTSecret = secret
	router := srv.Router()

	req := httptest.NewRequest("POST", "/functions/v1/job-worker", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	bad, _ := jwt.New(jwt.SigningMethodHS256).SignedString([]byte("other"))
	req = httptest.NewRequest("POST", "/functions/v1/job-worker", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", rec.Code)
	}

	good, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(secret)
	req = httptest.NewRequest("POST", "/functions/v1/job-worker", nil)
	req.Header.Set("Authorization", "Bearer "+good)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", rec.Code)
	}
}

func TestCreateJob(t *testing.T) {
	mem := storage.NewMemory(0)
	waker := &recordingWaker{}
	srv := newServer(mem)
	srv.Waker = waker
	router := srv.Router()

	body := `{"user_id":"u1","is_premium":true,"priority":2,"companies":[{"siren":"1","name":"A"},{"siren":"2","name":"B"}]}`
	req := httptest.NewRequest("POST", "/v1/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "pending" || resp["total_count"].(float64) != 2 || resp["is_premium"] != true {
		t.Errorf("unexpected job %v", resp)
	}
	if len(waker.ids) != 1 || waker.ids[0] != resp["id"] {
		t.Errorf("expected one wake for the new job, got %v", waker.ids)
	}
	if n, _ := mem.CountPending(context.Background()); n != 1 {
		t.Errorf("expected 1 pending job, got %d", n)
	}
}

func TestCreateJob_Invalid(t *testing.T) {
	router := newServer(storage.NewMemory(0)).Router()

	for _, body := range []string{
		"invalid",
		`{"companies":[{"siren":"1"}]}`,
		`{"user_id":"u1","companies":[{"name":"no siren"}]}`,
	} {
		req := httptest.NewRequest("POST", "/v1/jobs", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
		if env := decodeEnvelope(t, rec); env.Success || env.Error == "" {
			t.Errorf("%s: expected error envelope, got %+v", body, env)
		}
	}
}

func TestGetJob(t *testing.T) {
	mem := storage.NewMemory(0)
	mem.InsertJob(context.Background(), domain.NewJob("job-1", "u1", false, 0, nil, time.Now()))
	router := newServer(mem).Router()

	req := httptest.NewRequest("GET", "/v1/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["id"] != "job-1" || resp["processed_count"].(float64) != 0 {
		t.Errorf("unexpected job %v", resp)
	}

	req = httptest.NewRequest("GET", "/v1/jobs/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Error != "Not Found" {
		t.Errorf("expected error envelope, got %+v", env)
	}
}

func TestHealthz(t *testing.T) {
	router := newServer(storage.NewMemory(0)).Router()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
