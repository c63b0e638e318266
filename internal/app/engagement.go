package app

import (
	"context"
	"fmt"

	"housing_reviews/internal/adapters/observability"
	"housing_reviews/internal/domain"
)

// EngagementService is the only writer of Review.LikeCount and of the
// engagement index. A like toggle reads and writes the user's entry and the
// review inside one transaction so the counter and the membership sets move
// together or not at all.
type EngagementService struct {
	store domain.Store
	retry RetryPolicy
}

func NewEngagementService(s domain.Store, p RetryPolicy) *EngagementService {
	return &EngagementService{store: s, retry: p}
}

func (s *EngagementService) ToggleLike(ctx context.Context, userID, reviewID string, want bool) (domain.LikeResult, error) {
	if userID == "" {
		return domain.LikeResult{}, domain.ErrNotAuthenticated
	}
	if reviewID == "" {
		return domain.LikeResult{}, fmt.Errorf("%w: review id", domain.ErrMissingSubject)
	}

	var res domain.LikeResult
	err := updateWithRetry(ctx, s.store, s.retry, "toggle_like", func(tx domain.Tx) error {
		// everything below is recomputed on each attempt
		res = domain.LikeResult{ReviewID: reviewID}

		e, _, err := tx.GetEngagement(ctx, userID)
		if err != nil {
			return err
		}
		r, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if want && r.Status.Terminal() && !e.Likes(reviewID) {
			return fmt.Errorf("%w: review %s", domain.ErrTerminalState, reviewID)
		}
		if !e.SetLiked(reviewID, want) {
			res.Liked, res.LikeCount = want, r.LikeCount
			return nil
		}
		if want {
			r.LikeCount++
		} else {
			r.LikeCount--
		}
		if r.LikeCount < 0 {
			// membership said liked but the counter is already 0: the pair
			// has drifted; refuse rather than write a negative count
			return fmt.Errorf("review %s like count would go negative", reviewID)
		}
		if err := tx.PutEngagement(ctx, e); err != nil {
			return err
		}
		if err := tx.PutReview(ctx, r); err != nil {
			return err
		}
		res.Liked, res.LikeCount, res.Changed = want, r.LikeCount, true
		return nil
	})
	if err != nil {
		return domain.LikeResult{}, err
	}
	observability.ObserveToggle("like", res.Changed)
	return res, nil
}

func (s *EngagementService) ToggleSave(ctx context.Context, userID string, subj domain.SubjectRef, want bool) (domain.SaveResult, error) {
	if userID == "" {
		return domain.SaveResult{}, domain.ErrNotAuthenticated
	}
	if err := checkSubject(subj); err != nil {
		return domain.SaveResult{}, err
	}

	var res domain.SaveResult
	err := updateWithRetry(ctx, s.store, s.retry, "toggle_save", func(tx domain.Tx) error {
		res = domain.SaveResult{Kind: subj.Kind, ID: subj.ID, Saved: want}
		e, _, err := tx.GetEngagement(ctx, userID)
		if err != nil {
			return err
		}
		if !e.SetSaved(subj, want) {
			return nil
		}
		res.Changed = true
		return tx.PutEngagement(ctx, e)
	})
	if err != nil {
		return domain.SaveResult{}, err
	}
	observability.ObserveToggle("save_"+string(subj.Kind), res.Changed)
	return res, nil
}

// CheckSaved reports membership. The user's entry is created if missing;
// no set is modified.
func (s *EngagementService) CheckSaved(ctx context.Context, userID string, subj domain.SubjectRef) (bool, error) {
	if userID == "" {
		return false, domain.ErrNotAuthenticated
	}
	if err := checkSubject(subj); err != nil {
		return false, err
	}
	var saved bool
	err := updateWithRetry(ctx, s.store, s.retry, "check_saved", func(tx domain.Tx) error {
		e, found, err := tx.GetEngagement(ctx, userID)
		if err != nil {
			return err
		}
		saved = e.Saved(subj)
		if found {
			return nil
		}
		return tx.PutEngagement(ctx, e)
	})
	return saved, err
}

// LikedByUser returns which of reviewIDs the user currently likes.
func (s *EngagementService) LikedByUser(ctx context.Context, userID string, reviewIDs []string) (map[string]bool, error) {
	if userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	out := make(map[string]bool, len(reviewIDs))
	err := s.store.View(ctx, func(tx domain.Tx) error {
		e, _, err := tx.GetEngagement(ctx, userID)
		if err != nil {
			return err
		}
		for _, id := range reviewIDs {
			out[id] = e.Likes(id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
