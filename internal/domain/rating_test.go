package domain_test

import (
	"math/rand"
	"reflect"
	"testing"

	"housing_reviews/internal/domain"
)

func review(id string, overall int, cat int, st domain.Status) domain.Review {
	return domain.Review{
		ID:     id,
		Status: st,
		ReviewContent: domain.ReviewContent{
			OverallRating: overall,
			Ratings: domain.CategoryRatings{
				Location: cat, Safety: cat, Value: cat,
				Maintenance: cat, Communication: cat, Condition: cat,
			},
		},
	}
}

func approvedOnly(rs []domain.Review) []domain.Review {
	var out []domain.Review
	for _, r := range rs {
		if r.Status == domain.StatusApproved {
			out = append(out, r)
		}
	}
	return out
}

func TestAggregate_Scenario(t *testing.T) {
	all := []domain.Review{
		review("a", 5, 5, domain.StatusApproved),
		review("b", 3, 1, domain.StatusApproved),
		review("c", 4, 3, domain.StatusApproved),
	}
	got := domain.Aggregate(approvedOnly(all))
	if got.Count != 3 || got.Overall == nil || *got.Overall != 4.0 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if v := got.Categories[domain.CategorySafety]; v == nil || *v != 3.0 {
		t.Fatalf("safety average: %v", v)
	}

	all = append(all, review("d", 2, 2, domain.StatusPending))
	again := domain.Aggregate(approvedOnly(all))
	if !reflect.DeepEqual(got, again) {
		t.Fatalf("pending review changed the summary: %+v vs %+v", got, again)
	}
}

func TestAggregate_EmptyUsesNil(t *testing.T) {
	got := domain.Aggregate(nil)
	if got.Count != 0 || got.Overall != nil {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if len(got.Categories) != len(domain.Categories) {
		t.Fatalf("expected every category key, got %d", len(got.Categories))
	}
	for c, v := range got.Categories {
		if v != nil {
			t.Fatalf("category %s: expected nil, got %v", c, *v)
		}
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	var rs []domain.Review
	for i := 0; i < 40; i++ {
		rs = append(rs, review(string(rune('a'+i%26)), 1+i%5, 1+(i*7)%5, domain.StatusApproved))
	}
	want := domain.Aggregate(rs)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Review(nil), rs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := domain.Aggregate(shuffled); !reflect.DeepEqual(want, got) {
			t.Fatalf("permutation %d changed result", i)
		}
	}
}

func TestAggregate_IgnoresStatus(t *testing.T) {
	rs := []domain.Review{review("a", 1, 1, domain.StatusDeclined), review("b", 5, 5, domain.StatusPending)}
	got := domain.Aggregate(rs)
	if got.Count != 2 || *got.Overall != 3.0 {
		t.Fatalf("aggregator filtered by status: %+v", got)
	}
}
