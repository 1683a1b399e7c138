package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"server/internal/credit"
	"server/internal/domain"
	"server/internal/jobs"
	"server/internal/middleware"
)

type stubRunner struct {
	summary *domain.Summary
	err     error
	gotReq  jobs.Request
}

func (s *stubRunner) Run(_ context.Context, req jobs.Request) (*domain.Summary, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

type stubJobs struct {
	jobs map[string]*domain.Job
}

func (s *stubJobs) Create(context.Context, *domain.Job) error { return nil }
func (s *stubJobs) UpdateStatus(context.Context, string, domain.JobStatus, *string) error {
	return nil
}
func (s *stubJobs) Complete(context.Context, string, string) error { return nil }
func (s *stubJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	return job, nil
}

type stubBalances struct {
	balance *domain.CreditBalance
}

func (s *stubBalances) GetOrCreate(_ context.Context, userID string) (*domain.CreditBalance, error) {
	if s.balance == nil {
		return &domain.CreditBalance{UserID: userID}, nil
	}
	return s.balance, nil
}

func (s *stubBalances) SettleJobCompleted(context.Context, string, string, domain.CreditSplit, string) error {
	return nil
}

type stubArchives struct {
	data map[string][]byte
}

func (s *stubArchives) Read(_ context.Context, key string) ([]byte, error) {
	data, ok := s.data[key]
	if !ok {
		return nil, errors.New("missing archive")
	}
	return data, nil
}

func newTestApp(runner Runner, jobRepo domain.JobRepository, balances domain.BalanceRepository, archives ArchiveReader) *App {
	if jobRepo == nil {
		jobRepo = &stubJobs{jobs: map[string]*domain.Job{}}
	}
	if balances == nil {
		balances = &stubBalances{}
	}
	if archives == nil {
		archives = &stubArchives{}
	}
	return NewApp(runner, jobRepo, credit.NewLedger(balances), archives, zerolog.Nop())
}

func TestEnhanceCreateSuccess(t *testing.T) {
	runner := &stubRunner{summary: &domain.Summary{
		JobID:       "job-1",
		Status:      "completed",
		ItemCount:   2,
		Cost:        0.70,
		FreeApplied: 2,
		ArchiveURL:  "https://assets.test/archives/job-1.zip",
	}}
	app := newTestApp(runner, nil, nil, nil)

	body := `{"references":["https://example.com/a.jpg","https://example.com/b.jpg"],"instruction":"brighten","label":"batch one"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enhancements", strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), middleware.LocaleKey, "en"))
	rec := httptest.NewRecorder()
	app.EnhanceCreate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got domain.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.JobID != "job-1" || got.ArchiveURL == "" {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if runner.gotReq.Instruction != "brighten" || len(runner.gotReq.References) != 2 {
		t.Fatalf("coordinator saw wrong request: %+v", runner.gotReq)
	}
	if runner.gotReq.Label != "batch one" {
		t.Fatalf("label = %q", runner.gotReq.Label)
	}
}

func TestEnhanceCreateErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantSlug string
	}{
		{
			name:     "validation",
			err:      fmt.Errorf("%w: reference 3: scheme must be https", domain.ErrValidation),
			wantCode: http.StatusBadRequest,
			wantSlug: "validation_failed",
		},
		{
			name:     "insufficient credits",
			err:      &domain.InsufficientCreditsError{Shortfall: 1.5, Balance: 0.5},
			wantCode: http.StatusPaymentRequired,
			wantSlug: "insufficient_credits",
		},
		{
			name:     "generation",
			err:      fmt.Errorf("%w: all strategies exhausted", domain.ErrGeneration),
			wantCode: http.StatusBadGateway,
			wantSlug: "generation_failed",
		},
		{
			name:     "persistence",
			err:      fmt.Errorf("%w: store archive", domain.ErrPersistence),
			wantCode: http.StatusInternalServerError,
			wantSlug: "internal",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(&stubRunner{err: tc.err}, nil, nil, nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/enhancements",
				strings.NewReader(`{"references":["https://example.com/a.jpg"],"instruction":"x"}`))
			rec := httptest.NewRecorder()
			app.EnhanceCreate(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantCode, rec.Body.String())
			}
			var payload map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if payload["error"] != tc.wantSlug {
				t.Fatalf("slug = %v, want %s", payload["error"], tc.wantSlug)
			}
		})
	}
}

func TestEnhanceCreateInsufficientIncludesShortfall(t *testing.T) {
	app := newTestApp(&stubRunner{err: &domain.InsufficientCreditsError{Shortfall: 2, Balance: 1}}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/enhancements",
		strings.NewReader(`{"references":["https://example.com/a.jpg"],"instruction":"x"}`))
	rec := httptest.NewRecorder()
	app.EnhanceCreate(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["shortfall"] != 2.0 || payload["balance"] != 1.0 {
		t.Fatalf("payload = %v", payload)
	}
}

func TestEnhanceCreateRejectsBadPayload(t *testing.T) {
	app := newTestApp(&stubRunner{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/enhancements", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	app.EnhanceCreate(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func requestWithJobID(method, target, jobID string, userID *string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("job_id", jobID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != nil {
		withUser := httptest.NewRequest(method, target, nil)
		withUser.Header.Set("X-User-ID", *userID)
		var captured *http.Request
		middleware.Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = r
		})).ServeHTTP(httptest.NewRecorder(), withUser)
		ctx = context.WithValue(captured.Context(), chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func TestEnhanceStatus(t *testing.T) {
	owner := "user-1"
	archiveKey := "archives/job-1.zip"
	repo := &stubJobs{jobs: map[string]*domain.Job{
		"job-1": {
			ID:         "job-1",
			UserID:     &owner,
			ItemCount:  3,
			Cost:       1.05,
			Status:     domain.JobStatusCompleted,
			ArchiveKey: &archiveKey,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		},
	}}
	app := newTestApp(&stubRunner{}, repo, nil, nil)

	rec := httptest.NewRecorder()
	app.EnhanceStatus(rec, requestWithJobID(http.MethodGet, "/v1/enhancements/job-1", "job-1", &owner))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "completed" || payload["archive_url"] != "/v1/enhancements/job-1/archive" {
		t.Fatalf("payload = %v", payload)
	}

	// Another user's job reads as absent.
	stranger := "user-2"
	rec = httptest.NewRecorder()
	app.EnhanceStatus(rec, requestWithJobID(http.MethodGet, "/v1/enhancements/job-1", "job-1", &stranger))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.EnhanceStatus(rec, requestWithJobID(http.MethodGet, "/v1/enhancements/nope", "nope", &owner))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", rec.Code)
	}
}

func TestEnhanceArchive(t *testing.T) {
	archiveKey := "archives/job-1.zip"
	repo := &stubJobs{jobs: map[string]*domain.Job{
		"job-1": {ID: "job-1", Status: domain.JobStatusCompleted, ArchiveKey: &archiveKey},
		"job-2": {ID: "job-2", Status: domain.JobStatusFailed},
	}}
	archives := &stubArchives{data: map[string][]byte{archiveKey: []byte("PK\x03\x04payload")}}
	app := newTestApp(&stubRunner{}, repo, nil, archives)

	rec := httptest.NewRecorder()
	app.EnhanceArchive(rec, requestWithJobID(http.MethodGet, "/v1/enhancements/job-1/archive", "job-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Fatalf("body does not look like a zip: %q", rec.Body.String()[:4])
	}

	rec = httptest.NewRecorder()
	app.EnhanceArchive(rec, requestWithJobID(http.MethodGet, "/v1/enhancements/job-2/archive", "job-2", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("non-completed archive status = %d, want 409", rec.Code)
	}
}

func TestCreditsBalance(t *testing.T) {
	balances := &stubBalances{balance: &domain.CreditBalance{UserID: "user-1", FreeUsed: 2, Credits: 7.5}}
	app := newTestApp(&stubRunner{}, nil, balances, nil)

	user := "user-1"
	rec := httptest.NewRecorder()
	app.CreditsBalance(rec, requestWithJobID(http.MethodGet, "/v1/credits", "", &user))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["free_remaining"] != 1.0 || payload["credits"] != 7.5 {
		t.Fatalf("payload = %v", payload)
	}

	// Anonymous callers see the full allowance.
	rec = httptest.NewRecorder()
	app.CreditsBalance(rec, httptest.NewRequest(http.MethodGet, "/v1/credits", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["free_remaining"] != float64(domain.FreeTrialAllowance) {
		t.Fatalf("anonymous free_remaining = %v", payload["free_remaining"])
	}
}
