package domain

import "context"

type ReviewStore interface {
	// Point reads return ErrNotFound when the id is unknown.
	GetReview(ctx context.Context, id string) (Review, error)
	PutReview(ctx context.Context, r Review) error
	ListReviews(ctx context.Context, s SubjectRef, status Status) ([]Review, error)
	ScanReviews(ctx context.Context, fn func(Review) error) error

	// Subject revisions change whenever the subject's APPROVED set changes.
	SubjectRevision(ctx context.Context, s SubjectRef) (uint64, error)
	BumpSubjectRevision(ctx context.Context, s SubjectRef) error
}

type EngagementIndex interface {
	// GetEngagement returns found=false and an empty entry when the user has none yet.
	GetEngagement(ctx context.Context, userID string) (e Engagement, found bool, err error)
	PutEngagement(ctx context.Context, e Engagement) error
	ScanEngagement(ctx context.Context, fn func(Engagement) error) error
}

// Tx is one all-or-nothing unit over both collections.
type Tx interface {
	ReviewStore
	EngagementIndex
}

type Store interface {
	// Update runs fn in a read-write transaction and commits when fn returns
	// nil. Losing to a concurrent writer surfaces as ErrConflict; nothing is
	// applied in that case.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Identity is what the gate vouches for after verifying a bearer credential.
type Identity struct {
	UserID         string `json:"userId"`
	DomainVerified bool   `json:"domainVerified"`
	Moderator      bool   `json:"moderator"`
}

type IdentityGate interface {
	// Verify returns ErrNotAuthenticated for anything it cannot vouch for.
	Verify(ctx context.Context, bearer string) (Identity, error)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}
