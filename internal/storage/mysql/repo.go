package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"

	"github.com/go-sql-driver/mysql"

	"housing_reviews/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// Repo implements domain.Store on InnoDB. Update transactions lock the rows
// they read (SELECT ... FOR UPDATE); deadlocks and lock timeouts surface as
// domain.ErrConflict so the caller retries from a fresh read.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	return r.run(ctx, nil, true, fn)
}

func (r *Repo) View(ctx context.Context, fn func(tx domain.Tx) error) error {
	return r.run(ctx, &sql.TxOptions{ReadOnly: true}, false, fn)
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) run(ctx context.Context, opts *sql.TxOptions, forUpdate bool, fn func(tx domain.Tx) error) error {
	stx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return translate(err)
	}
	if err := fn(&tx{q: stx, forUpdate: forUpdate}); err != nil {
		_ = stx.Rollback()
		return translate(err)
	}
	if err := stx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

const (
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
)

func translate(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == erLockDeadlock || me.Number == erLockWaitTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	var ne net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) || errors.As(err, &ne) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

type tx struct {
	q         *sql.Tx
	forUpdate bool
}

func (t *tx) lock(q string) string {
	if t.forUpdate {
		return q + "\nFOR UPDATE"
	}
	return q
}

type rowScanner interface{ Scan(dest ...any) error }

func scanReview(s rowScanner) (domain.Review, error) {
	var (
		rv                  domain.Review
		apartmentID, author sql.NullString
		photos              []byte
		bedrooms, price     sql.NullInt64
		status              string
	)
	if err := s.Scan(
		&rv.ID,
		&apartmentID,
		&rv.LandlordID,
		&author,
		&rv.OverallRating,
		&rv.Ratings.Location,
		&rv.Ratings.Safety,
		&rv.Ratings.Value,
		&rv.Ratings.Maintenance,
		&rv.Ratings.Communication,
		&rv.Ratings.Condition,
		&rv.Body,
		&photos,
		&bedrooms,
		&price,
		&status,
		&rv.LikeCount,
		&rv.SubmittedAt,
		&rv.UpdatedAt,
	); err != nil {
		return domain.Review{}, err
	}
	if apartmentID.Valid {
		s := apartmentID.String
		rv.ApartmentID = &s
	}
	if author.Valid {
		s := author.String
		rv.AuthorUserID = &s
	}
	if bedrooms.Valid {
		b := int(bedrooms.Int64)
		rv.Bedrooms = &b
	}
	if price.Valid {
		p := price.Int64
		rv.Price = &p
	}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &rv.Photos); err != nil {
			return domain.Review{}, fmt.Errorf("decode photos for %s: %w", rv.ID, err)
		}
	}
	rv.Status = domain.Status(status)
	return rv, nil
}

func (t *tx) GetReview(ctx context.Context, id string) (domain.Review, error) {
	rv, err := scanReview(t.q.QueryRowContext(ctx, t.lock(getReviewSQL), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, fmt.Errorf("review %s: %w", id, domain.ErrNotFound)
		}
		return domain.Review{}, err
	}
	return rv, nil
}

func (t *tx) PutReview(ctx context.Context, rv domain.Review) error {
	photos := rv.Photos
	if photos == nil {
		photos = []string{}
	}
	pj, _ := json.Marshal(photos)
	_, err := t.q.ExecContext(ctx, upsertReviewSQL,
		rv.ID,
		valStr(rv.ApartmentID),
		rv.LandlordID,
		valStr(rv.AuthorUserID),
		rv.OverallRating,
		rv.Ratings.Location,
		rv.Ratings.Safety,
		rv.Ratings.Value,
		rv.Ratings.Maintenance,
		rv.Ratings.Communication,
		rv.Ratings.Condition,
		rv.Body,
		string(pj),
		valInt(rv.Bedrooms),
		valInt64(rv.Price),
		string(rv.Status),
		rv.LikeCount,
		rv.SubmittedAt.UTC(),
		rv.UpdatedAt.UTC(),
	)
	return err
}

func (t *tx) ListReviews(ctx context.Context, s domain.SubjectRef, status domain.Status) ([]domain.Review, error) {
	q, ok := listReviewsSQL[string(s.Kind)]
	if !ok {
		return nil, fmt.Errorf("%w: subject kind %q", domain.ErrInvalidField, s.Kind)
	}
	return t.queryReviews(ctx, q, s.ID, string(status))
}

func (t *tx) ScanReviews(ctx context.Context, fn func(domain.Review) error) error {
	// rows are drained before fn runs; the driver cannot interleave
	// statements on one connection
	all, err := t.queryReviews(ctx, scanReviewsSQL)
	if err != nil {
		return err
	}
	for _, rv := range all {
		if err := fn(rv); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) queryReviews(ctx context.Context, q string, args ...any) ([]domain.Review, error) {
	rows, err := t.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *tx) SubjectRevision(ctx context.Context, s domain.SubjectRef) (uint64, error) {
	var rev uint64
	err := t.q.QueryRowContext(ctx, getRevisionSQL, string(s.Kind), s.ID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}

func (t *tx) BumpSubjectRevision(ctx context.Context, s domain.SubjectRef) error {
	_, err := t.q.ExecContext(ctx, bumpRevisionSQL, string(s.Kind), s.ID)
	return err
}

func (t *tx) GetEngagement(ctx context.Context, userID string) (domain.Engagement, bool, error) {
	e, err := scanEngagement(t.q.QueryRowContext(ctx, t.lock(getEngagementSQL), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewEngagement(userID), false, nil
	}
	if err != nil {
		return domain.Engagement{}, false, err
	}
	return e, true, nil
}

func (t *tx) PutEngagement(ctx context.Context, e domain.Engagement) error {
	_, err := t.q.ExecContext(ctx, upsertEngagementSQL,
		e.UserID,
		setJSON(e.LikedReviewIDs),
		setJSON(e.SavedApartmentIDs),
		setJSON(e.SavedLandlordIDs),
	)
	return err
}

func (t *tx) ScanEngagement(ctx context.Context, fn func(domain.Engagement) error) error {
	rows, err := t.q.QueryContext(ctx, scanEngagementSQL)
	if err != nil {
		return err
	}
	var all []domain.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			rows.Close()
			return err
		}
		all = append(all, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, e := range all {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func scanEngagement(s rowScanner) (domain.Engagement, error) {
	var (
		e                  domain.Engagement
		liked, apts, lords []byte
	)
	if err := s.Scan(&e.UserID, &liked, &apts, &lords); err != nil {
		return domain.Engagement{}, err
	}
	var err error
	if e.LikedReviewIDs, err = setFromJSON(liked); err != nil {
		return domain.Engagement{}, err
	}
	if e.SavedApartmentIDs, err = setFromJSON(apts); err != nil {
		return domain.Engagement{}, err
	}
	if e.SavedLandlordIDs, err = setFromJSON(lords); err != nil {
		return domain.Engagement{}, err
	}
	return e, nil
}

// Sets are stored as sorted JSON arrays of ids.
func setJSON(m map[string]bool) string {
	ids := make([]string, 0, len(m))
	for id, ok := range m {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	b, _ := json.Marshal(ids)
	return string(b)
}

func setFromJSON(b []byte) (map[string]bool, error) {
	out := map[string]bool{}
	if len(b) == 0 {
		return out, nil
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("decode id set: %w", err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
