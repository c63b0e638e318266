package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"housing_reviews/internal/adapters/observability"
	"housing_reviews/internal/domain"
)

// ReviewService owns every write to a review's content and status.
type ReviewService struct {
	store domain.Store
	retry RetryPolicy
	now   func() time.Time
	newID func() string
}

func NewReviewService(s domain.Store, p RetryPolicy) *ReviewService {
	return &ReviewService{
		store: s,
		retry: p,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (s *ReviewService) SubmitReview(ctx context.Context, authorUserID string, in domain.NewReview) (domain.Review, error) {
	if strings.TrimSpace(in.LandlordID) == "" {
		return domain.Review{}, fmt.Errorf("%w: landlordId", domain.ErrMissingSubject)
	}
	if err := validateSubjectID("landlordId", strings.TrimSpace(in.LandlordID)); err != nil {
		return domain.Review{}, err
	}
	if in.ApartmentID != nil {
		if err := validateSubjectID("apartmentId", strings.TrimSpace(*in.ApartmentID)); err != nil {
			return domain.Review{}, err
		}
	}
	if err := validateContent(in.Content); err != nil {
		return domain.Review{}, err
	}

	r := newReview(s.newID(), authorUserID, in, s.now())
	err := updateWithRetry(ctx, s.store, s.retry, "submit_review", func(tx domain.Tx) error {
		return tx.PutReview(ctx, r)
	})
	if err != nil {
		return domain.Review{}, err
	}
	log.Info().Str("review", r.ID).Str("landlord", r.LandlordID).Msg("review submitted")
	return r, nil
}

// EditReview replaces the content of a review and resets it to PENDING.
// Only the author (when one is recorded) or a moderator may edit.
func (s *ReviewService) EditReview(ctx context.Context, caller domain.Identity, reviewID string, c domain.ReviewContent) (domain.Review, error) {
	if reviewID == "" {
		return domain.Review{}, fmt.Errorf("%w: review id", domain.ErrMissingSubject)
	}
	if err := validateContent(c); err != nil {
		return domain.Review{}, err
	}

	var out domain.Review
	err := updateWithRetry(ctx, s.store, s.retry, "edit_review", func(tx domain.Tx) error {
		cur, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("%w: review %s", domain.ErrTerminalState, reviewID)
		}
		if cur.AuthorUserID != nil && *cur.AuthorUserID != caller.UserID && !caller.Moderator {
			return fmt.Errorf("%w: review %s belongs to another user", domain.ErrForbidden, reviewID)
		}
		next := applyEdit(cur, c, s.now())
		if err := tx.PutReview(ctx, next); err != nil {
			return err
		}
		if domain.ApprovedSetChanged(cur.Status, next.Status) {
			if err := bumpSubjects(ctx, tx, next); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	return out, nil
}

// SetReviewStatus is the moderator action. The requested value is checked
// against the enum before the store is touched.
func (s *ReviewService) SetReviewStatus(ctx context.Context, reviewID, requested string) (domain.Review, error) {
	if reviewID == "" {
		return domain.Review{}, fmt.Errorf("%w: review id", domain.ErrMissingSubject)
	}
	to, err := domain.ParseStatus(requested)
	if err != nil {
		return domain.Review{}, err
	}
	return s.transition(ctx, "set_review_status", reviewID, func(cur domain.Review) (domain.Status, bool) {
		return to, true
	})
}

// ReportReview pulls an APPROVED review back into moderation. Reports on
// PENDING or DECLINED reviews change nothing.
func (s *ReviewService) ReportReview(ctx context.Context, reviewID string) (domain.Review, error) {
	if reviewID == "" {
		return domain.Review{}, fmt.Errorf("%w: review id", domain.ErrMissingSubject)
	}
	return s.transition(ctx, "report_review", reviewID, func(cur domain.Review) (domain.Status, bool) {
		return domain.StatusPending, cur.Status == domain.StatusApproved || cur.Status.Terminal()
	})
}

// transition asks pick for the target status of the current review; when
// apply is false the review is returned unchanged.
func (s *ReviewService) transition(ctx context.Context, op, reviewID string, pick func(domain.Review) (domain.Status, bool)) (domain.Review, error) {
	var (
		out     domain.Review
		from    domain.Status
		changed bool
	)
	err := updateWithRetry(ctx, s.store, s.retry, op, func(tx domain.Tx) error {
		changed = false
		cur, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		to, apply := pick(cur)
		if !apply {
			out = cur
			return nil
		}
		next, ch, err := domain.ApplyTransition(cur, to, s.now())
		if err != nil {
			return err
		}
		out, from, changed = next, cur.Status, ch
		if !ch {
			return nil
		}
		if err := tx.PutReview(ctx, next); err != nil {
			return err
		}
		if domain.ApprovedSetChanged(cur.Status, next.Status) {
			return bumpSubjects(ctx, tx, next)
		}
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	if changed {
		observability.ObserveTransition(string(from), string(out.Status))
		log.Info().Str("review", reviewID).Str("from", string(from)).Str("to", string(out.Status)).Msg("review status changed")
	}
	return out, nil
}

func bumpSubjects(ctx context.Context, tx domain.Tx, r domain.Review) error {
	for _, subj := range r.Subjects() {
		if err := tx.BumpSubjectRevision(ctx, subj); err != nil {
			return fmt.Errorf("bump revision %s: %w", subj, err)
		}
	}
	return nil
}
