package app_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"housing_reviews/internal/app"
	"housing_reviews/internal/domain"
	badgerstore "housing_reviews/internal/storage/badger"
)

// ---- fakes ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string]domain.RatingSummary
	hits  int
	sets  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	c.hits++
	*dst.(*domain.RatingSummary) = v
	return true, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]domain.RatingSummary{}
	}
	c.store[key] = v.(domain.RatingSummary)
	c.sets++
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// failingStore fails every Update with err and counts the attempts.
type failingStore struct {
	domain.Store
	err   error
	calls int32
}

func (f *failingStore) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

// ---- helpers ----

func fastRetry() app.RetryPolicy {
	return app.RetryPolicy{MaxAttempts: 50, BaseDelay: time.Millisecond, MaxDelay: 20 * time.Millisecond}
}

func newStore(t *testing.T) domain.Store {
	t.Helper()
	st, err := badgerstore.Open(badgerstore.InMemoryConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func ptr[T any](v T) *T { return &v }

func content(overall int, cat int) domain.ReviewContent {
	return domain.ReviewContent{
		OverallRating: overall,
		Ratings: domain.CategoryRatings{
			Location: cat, Safety: cat, Value: cat,
			Maintenance: cat, Communication: cat, Condition: cat,
		},
		Body: "quiet building, responsive landlord",
	}
}

// submit stores a review for apt/landlord and moves it to st.
func submit(t *testing.T, rs *app.ReviewService, author, apt, landlord string, overall int, st domain.Status) domain.Review {
	t.Helper()
	ctx := context.Background()
	var aptID *string
	if apt != "" {
		aptID = ptr(apt)
	}
	r, err := rs.SubmitReview(ctx, author, domain.NewReview{ApartmentID: aptID, LandlordID: landlord, Content: content(overall, overall)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st != domain.StatusPending {
		if r, err = rs.SetReviewStatus(ctx, r.ID, string(st)); err != nil {
			t.Fatalf("set status %s: %v", st, err)
		}
	}
	return r
}

func getReview(t *testing.T, st domain.Store, id string) domain.Review {
	t.Helper()
	var out domain.Review
	err := st.View(context.Background(), func(tx domain.Tx) error {
		r, err := tx.GetReview(context.Background(), id)
		out = r
		return err
	})
	if err != nil {
		t.Fatalf("get review %s: %v", id, err)
	}
	return out
}

func getEngagement(t *testing.T, st domain.Store, userID string) (domain.Engagement, bool) {
	t.Helper()
	var (
		out   domain.Engagement
		found bool
	)
	err := st.View(context.Background(), func(tx domain.Tx) error {
		e, f, err := tx.GetEngagement(context.Background(), userID)
		out, found = e, f
		return err
	})
	if err != nil {
		t.Fatalf("get engagement %s: %v", userID, err)
	}
	return out, found
}
