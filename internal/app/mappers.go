package app

import (
	"strings"
	"time"

	"housing_reviews/internal/domain"
)

func optString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func normalizeContent(c domain.ReviewContent) domain.ReviewContent {
	c.Body = strings.TrimSpace(c.Body)
	if len(c.Photos) > 0 {
		c.Photos = append([]string(nil), c.Photos...)
	}
	return c
}

// newReview builds the stored form of a submission. Status is always
// PENDING whatever the client sent.
func newReview(id, authorUserID string, in domain.NewReview, now time.Time) domain.Review {
	r := domain.Review{
		ID:            id,
		ApartmentID:   optString(in.ApartmentID),
		LandlordID:    strings.TrimSpace(in.LandlordID),
		ReviewContent: normalizeContent(in.Content),
		Status:        domain.StatusPending,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	if authorUserID != "" {
		a := authorUserID
		r.AuthorUserID = &a
	}
	return r
}

// applyEdit replaces the content and sends the review back to moderation.
// Identity, subjects, author, likes and SubmittedAt are kept.
func applyEdit(r domain.Review, c domain.ReviewContent, now time.Time) domain.Review {
	r.ReviewContent = normalizeContent(c)
	r.Status = domain.StatusPending
	r.UpdatedAt = now
	return r
}
