package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	server "housing_reviews/internal/adapters/http_server"
	"housing_reviews/internal/app"
	"housing_reviews/internal/domain"
	badgerstore "housing_reviews/internal/storage/badger"
)

// ---- fakes ----

type tokenGate map[string]domain.Identity

func (g tokenGate) Verify(ctx context.Context, bearer string) (domain.Identity, error) {
	id, ok := g[bearer]
	if !ok {
		return domain.Identity{}, domain.ErrNotAuthenticated
	}
	return id, nil
}

var gate = tokenGate{
	"alice": {UserID: "alice", DomainVerified: true},
	"bob":   {UserID: "bob", DomainVerified: true},
	"mod":   {UserID: "mod", Moderator: true},
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	st, err := badgerstore.Open(badgerstore.InMemoryConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	p := app.RetryPolicy{MaxAttempts: 20, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	srv := server.New(gate, 5*time.Second)
	srv.MountHandlers(&server.Handlers{
		Reviews:    app.NewReviewService(st, p),
		Engagement: app.NewEngagementService(st, p),
		Q:          app.NewQueryService(st, nil, time.Minute),
	})
	return srv.Mux()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func reviewBody(apt string, overall int) map[string]any {
	r := 4
	return map[string]any{
		"apartmentId":   apt,
		"landlordId":    "ll-1",
		"status":        "APPROVED", // ignored
		"overallRating": overall,
		"ratings": map[string]int{
			"location": r, "safety": r, "value": r, "maintenance": r, "communication": r, "condition": r,
		},
		"body": "great light",
	}
}

func submitApproved(t *testing.T, h http.Handler, apt string, overall int) domain.Review {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/reviews", "alice", reviewBody(apt, overall))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	r := decodeInto[domain.Review](t, rec)
	if r.Status != domain.StatusPending {
		t.Fatalf("submit must force PENDING, got %s", r.Status)
	}
	rec = do(t, h, http.MethodPut, "/v1/reviews/"+r.ID+"/status", "mod", map[string]string{"status": "APPROVED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body.String())
	}
	return decodeInto[domain.Review](t, rec)
}

// ---- tests ----

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestSubmit_RequiresIdentity(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/reviews", "", reviewBody("apt-1", 4))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous submit: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected problem+json, got %q", ct)
	}

	rec = do(t, h, http.MethodPost, "/v1/reviews", "forged", reviewBody("apt-1", 4))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/v1/reviews", "", reviewBody("apt-1", 4), "Authorization", "Basic Zm9vOmJhcg==")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer scheme: %d", rec.Code)
	}
}

func TestSubmit_Validation(t *testing.T) {
	h := newTestServer(t)

	body := reviewBody("apt-1", 9)
	rec := do(t, h, http.MethodPost, "/v1/reviews", "alice", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range rating: %d", rec.Code)
	}
	body = reviewBody("apt-1", 4)
	delete(body, "landlordId")
	rec = do(t, h, http.MethodPost, "/v1/reviews", "alice", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing landlord: %d", rec.Code)
	}
	for _, id := range []string{"ll-1\x00zzz", strings.Repeat("l", 65)} {
		body = reviewBody("apt-1", 4)
		body["landlordId"] = id
		rec = do(t, h, http.MethodPost, "/v1/reviews", "alice", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("malformed landlord %q: %d", id, rec.Code)
		}
	}
	rec = do(t, h, http.MethodGet, "/v1/landlords/"+strings.Repeat("l", 65)+"/rating", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("over-long subject id: %d", rec.Code)
	}
}

func TestModerationFlow(t *testing.T) {
	h := newTestServer(t)
	r := submitApproved(t, h, "apt-1", 5)

	// only moderators change status
	rec := do(t, h, http.MethodPut, "/v1/reviews/"+r.ID+"/status", "alice", map[string]string{"status": "DECLINED"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-moderator status change: %d", rec.Code)
	}
	rec = do(t, h, http.MethodPut, "/v1/reviews/"+r.ID+"/status", "mod", map[string]string{"status": "ARCHIVED"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: %d", rec.Code)
	}
	rec = do(t, h, http.MethodPut, "/v1/reviews/"+r.ID+"/status", "mod", map[string]string{"status": "DELETED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPut, "/v1/reviews/"+r.ID+"/status", "mod", map[string]string{"status": "APPROVED"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("resurrect deleted: %d", rec.Code)
	}
	rec = do(t, h, http.MethodPut, "/v1/reviews/missing/status", "mod", map[string]string{"status": "APPROVED"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing review: %d", rec.Code)
	}
}

func TestGetReview_Visibility(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/v1/reviews", "alice", reviewBody("apt-1", 4))
	r := decodeInto[domain.Review](t, rec)

	if rec := do(t, h, http.MethodGet, "/v1/reviews/"+r.ID, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pending review visible anonymously: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/reviews/"+r.ID, "bob", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pending review visible to another user: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/reviews/"+r.ID, "alice", nil); rec.Code != http.StatusOK {
		t.Fatalf("author cannot see own pending review: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/reviews/"+r.ID, "mod", nil); rec.Code != http.StatusOK {
		t.Fatalf("moderator cannot see pending review: %d", rec.Code)
	}
}

func TestEditReview(t *testing.T) {
	h := newTestServer(t)
	r := submitApproved(t, h, "apt-1", 5)
	edit := reviewBody("", 2)

	if rec := do(t, h, http.MethodPut, "/v1/reviews/"+r.ID, "bob", edit); rec.Code != http.StatusForbidden {
		t.Fatalf("edit by another user: %d", rec.Code)
	}
	rec := do(t, h, http.MethodPut, "/v1/reviews/"+r.ID, "alice", edit)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: %d %s", rec.Code, rec.Body.String())
	}
	got := decodeInto[domain.Review](t, rec)
	if got.Status != domain.StatusPending || got.OverallRating != 2 {
		t.Fatalf("edit must reset moderation: %+v", got)
	}
}

func TestReportReview(t *testing.T) {
	h := newTestServer(t)
	r := submitApproved(t, h, "apt-1", 5)

	if rec := do(t, h, http.MethodPost, "/v1/reviews/"+r.ID+"/report", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous report: %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/v1/reviews/"+r.ID+"/report", "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: %d %s", rec.Code, rec.Body.String())
	}
	out := decodeInto[map[string]string](t, rec)
	if out["status"] != string(domain.StatusPending) {
		t.Fatalf("report must send review back to moderation: %v", out)
	}
}

func TestListReviews(t *testing.T) {
	h := newTestServer(t)
	r := submitApproved(t, h, "apt-1", 5)
	do(t, h, http.MethodPost, "/v1/reviews", "alice", reviewBody("apt-1", 1)) // stays PENDING

	type listing struct {
		Count int `json:"count"`
		Items []struct {
			ID    string `json:"id"`
			Liked *bool  `json:"liked"`
		} `json:"items"`
	}

	rec := do(t, h, http.MethodGet, "/v1/apartments/apt-1/reviews", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	l := decodeInto[listing](t, rec)
	if l.Count != 1 || l.Items[0].ID != r.ID || l.Items[0].Liked != nil {
		t.Fatalf("anonymous list: %+v", l)
	}

	// conditional GET
	etag := rec.Header().Get("ETag")
	if rec := do(t, h, http.MethodGet, "/v1/apartments/apt-1/reviews", "", nil, "If-None-Match", etag); rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}

	do(t, h, http.MethodPut, "/v1/reviews/"+r.ID+"/like", "bob", map[string]bool{"liked": true})
	l = decodeInto[listing](t, do(t, h, http.MethodGet, "/v1/landlords/ll-1/reviews", "bob", nil))
	if l.Count != 1 || l.Items[0].Liked == nil || !*l.Items[0].Liked {
		t.Fatalf("signed-in list should carry like state: %+v", l)
	}

	if rec := do(t, h, http.MethodGet, "/v1/apartments/apt-1/reviews?status=PENDING", "alice", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("pending list for non-moderator: %d", rec.Code)
	}
	l = decodeInto[listing](t, do(t, h, http.MethodGet, "/v1/apartments/apt-1/reviews?status=PENDING", "mod", nil))
	if l.Count != 1 {
		t.Fatalf("moderator pending list: %+v", l)
	}
	if rec := do(t, h, http.MethodGet, "/v1/apartments/apt-1/reviews?status=ARCHIVED", "mod", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status filter: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/buildings/apt-1/reviews", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown subject kind: %d", rec.Code)
	}
}

func TestToggleLike(t *testing.T) {
	h := newTestServer(t)
	r := submitApproved(t, h, "apt-1", 5)
	path := "/v1/reviews/" + r.ID + "/like"

	if rec := do(t, h, http.MethodPut, path, "", map[string]bool{"liked": true}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous like: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, path, "alice", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing liked flag: %d", rec.Code)
	}

	for i, tc := range []struct {
		token   string
		liked   bool
		count   int64
		changed bool
	}{
		{"alice", true, 1, true},
		{"alice", true, 1, false},
		{"bob", true, 2, true},
		{"alice", false, 1, true},
	} {
		rec := do(t, h, http.MethodPut, path, tc.token, map[string]bool{"liked": tc.liked})
		if rec.Code != http.StatusOK {
			t.Fatalf("step %d: %d %s", i, rec.Code, rec.Body.String())
		}
		res := decodeInto[domain.LikeResult](t, rec)
		if res.LikeCount != tc.count || res.Changed != tc.changed || res.Liked != tc.liked {
			t.Fatalf("step %d: %+v", i, res)
		}
	}

	if rec := do(t, h, http.MethodPut, "/v1/reviews/missing/like", "alice", map[string]bool{"liked": true}); rec.Code != http.StatusNotFound {
		t.Fatalf("like of missing review: %d", rec.Code)
	}
}

func TestSaveAndCheck(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/apartments/x/save", "alice", nil)
	if rec.Code != http.StatusOK || decodeInto[domain.SaveResult](t, rec).Saved {
		t.Fatalf("initial check: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPut, "/v1/apartments/x/save", "alice", map[string]bool{"saved": true})
	if res := decodeInto[domain.SaveResult](t, rec); rec.Code != http.StatusOK || !res.Changed || !res.Saved {
		t.Fatalf("save: %d %+v", rec.Code, res)
	}
	if res := decodeInto[domain.SaveResult](t, do(t, h, http.MethodGet, "/v1/landlords/x/save", "alice", nil)); res.Saved {
		t.Fatalf("landlord x must be independent of apartment x")
	}
	if res := decodeInto[domain.SaveResult](t, do(t, h, http.MethodGet, "/v1/apartments/x/save", "alice", nil)); !res.Saved {
		t.Fatalf("apartment x should be saved")
	}
	if rec := do(t, h, http.MethodGet, "/v1/apartments/x/save", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous check: %d", rec.Code)
	}
}

func TestRatingSummary(t *testing.T) {
	h := newTestServer(t)

	empty := decodeInto[map[string]any](t, do(t, h, http.MethodGet, "/v1/apartments/apt-1/rating", "", nil))
	if empty["overallAverage"] != nil || empty["count"] != float64(0) {
		t.Fatalf("empty summary: %v", empty)
	}

	submitApproved(t, h, "apt-1", 5)
	submitApproved(t, h, "apt-1", 3)
	submitApproved(t, h, "apt-1", 4)
	do(t, h, http.MethodPost, "/v1/reviews", "alice", reviewBody("apt-1", 2)) // PENDING

	rec := do(t, h, http.MethodGet, "/v1/apartments/apt-1/rating", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rating: %d %s", rec.Code, rec.Body.String())
	}
	sum := decodeInto[domain.RatingSummary](t, rec)
	if sum.Count != 3 || sum.Overall == nil || *sum.Overall != 4.0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestStatusFor_MapsStoreErrors(t *testing.T) {
	// a gate that cannot reach its backend surfaces as 503
	h := server.New(failingGate{}, time.Second)
	h.MountHandlers(&server.Handlers{})
	rec := do(t, h.Mux(), http.MethodGet, "/healthz", "any", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

type failingGate struct{}

func (failingGate) Verify(ctx context.Context, bearer string) (domain.Identity, error) {
	return domain.Identity{}, errors.Join(domain.ErrStoreUnavailable, errors.New("identity backend down"))
}
