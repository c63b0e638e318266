package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"housing_reviews/internal/domain"
)

type QueryService struct {
	store    domain.Store
	cache    domain.Cache
	cacheTTL time.Duration
	sf       singleflight.Group
}

// NewQueryService wires the read paths. c may be nil to disable caching.
func NewQueryService(s domain.Store, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: s, cache: c, cacheTTL: ttl}
}

func checkSubject(s domain.SubjectRef) error {
	if s.ID == "" {
		return fmt.Errorf("%w: %s id", domain.ErrMissingSubject, s.Kind)
	}
	if s.Kind != domain.SubjectApartment && s.Kind != domain.SubjectLandlord {
		return fmt.Errorf("%w: subject kind %q", domain.ErrInvalidField, s.Kind)
	}
	return validateSubjectID(string(s.Kind)+" id", s.ID)
}

func (s *QueryService) GetReview(ctx context.Context, id string) (domain.Review, error) {
	if id == "" {
		return domain.Review{}, fmt.Errorf("%w: review id", domain.ErrMissingSubject)
	}
	var out domain.Review
	err := s.store.View(ctx, func(tx domain.Tx) error {
		r, err := tx.GetReview(ctx, id)
		out = r
		return err
	})
	return out, err
}

// ListReviews returns the subject's reviews in one status, newest first.
func (s *QueryService) ListReviews(ctx context.Context, subj domain.SubjectRef, status domain.Status) ([]domain.Review, error) {
	if err := checkSubject(subj); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, string(status))
	}
	var out []domain.Review
	err := s.store.View(ctx, func(tx domain.Tx) error {
		rs, err := tx.ListReviews(ctx, subj, status)
		out = rs
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// summaryTimeout bounds a shared rating computation once detached from its
// first caller.
const summaryTimeout = 10 * time.Second

func ratingKey(subj domain.SubjectRef, rev uint64) string {
	return fmt.Sprintf("rating:%s:%s:%d", subj.Kind, subj.ID, rev)
}

// RatingSummary aggregates the subject's APPROVED reviews. Cached entries are
// keyed by the subject revision, which every change to the APPROVED set
// bumps, so a hit always equals a fresh recompute.
func (s *QueryService) RatingSummary(ctx context.Context, subj domain.SubjectRef) (domain.RatingSummary, error) {
	if err := checkSubject(subj); err != nil {
		return domain.RatingSummary{}, err
	}

	var rev uint64
	if err := s.store.View(ctx, func(tx domain.Tx) error {
		r, err := tx.SubjectRevision(ctx, subj)
		rev = r
		return err
	}); err != nil {
		return domain.RatingSummary{}, err
	}
	key := ratingKey(subj, rev)

	// the shared computation outlives any single caller so one cancelled
	// reader does not fail the others collapsed onto the same key
	ch := s.sf.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
		defer cancel()

		var out domain.RatingSummary
		if s.cache != nil {
			if ok, _ := s.cache.Get(ctx, key, &out); ok {
				return out, nil
			}
		}
		var snapRev uint64
		err := s.store.View(ctx, func(tx domain.Tx) error {
			r, err := tx.SubjectRevision(ctx, subj)
			if err != nil {
				return err
			}
			snapRev = r
			approved, err := tx.ListReviews(ctx, subj, domain.StatusApproved)
			if err != nil {
				return err
			}
			out = domain.Aggregate(approved)
			return nil
		})
		if err != nil {
			return domain.RatingSummary{}, err
		}
		// a moderation commit may have landed between the two reads; the
		// fresh result is still correct but belongs to a newer revision
		if s.cache != nil && snapRev == rev {
			_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return domain.RatingSummary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.RatingSummary{}, res.Err
		}
		return res.Val.(domain.RatingSummary), nil
	}
}
