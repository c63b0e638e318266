package badger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"housing_reviews/internal/domain"
)

// Key layout. Components are joined with NUL so ids may contain '/'. Subject
// ids are hex encoded so no id can extend into another subject's prefix.
//
//	review\x00<id>                              -> Review JSON
//	subj\x00<kind>\x00<hex subject>\x00<review> -> empty (secondary index)
//	user\x00<userID>                            -> Engagement JSON
//	rev\x00<kind>\x00<hex subject>              -> uint64 big-endian
const sep = "\x00"

var (
	reviewPrefix = []byte("review" + sep)
	userPrefix   = []byte("user" + sep)
)

func reviewKey(id string) []byte { return append(append([]byte{}, reviewPrefix...), id...) }
func userKey(id string) []byte   { return append(append([]byte{}, userPrefix...), id...) }

func subjectPrefix(s domain.SubjectRef) []byte {
	return []byte("subj" + sep + string(s.Kind) + sep + hex.EncodeToString([]byte(s.ID)) + sep)
}

func subjectIndexKey(s domain.SubjectRef, reviewID string) []byte {
	return append(subjectPrefix(s), reviewID...)
}

func revisionKey(s domain.SubjectRef) []byte {
	return []byte("rev" + sep + string(s.Kind) + sep + hex.EncodeToString([]byte(s.ID)))
}

type Store struct{ db *DB }

func New(db *DB) *Store { return &Store{db: db} }

// Open is a convenience for OpenDB + New.
func Open(cfg Config) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (s *Store) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	return translate(s.db.withTxn(ctx, true, func(txn *badger.Txn) error {
		return fn(&tx{txn: txn, writable: true})
	}))
}

func (s *Store) View(ctx context.Context, fn func(tx domain.Tx) error) error {
	return translate(s.db.withTxn(ctx, false, func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	}))
}

func (s *Store) Close() error { return s.db.Close() }

// translate maps badger failures onto the domain taxonomy. Errors already
// carrying a domain sentinel pass through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case errors.Is(err, badger.ErrDBClosed), errors.Is(err, badger.ErrBlockedWrites):
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

type tx struct {
	txn      *badger.Txn
	writable bool
}

var errReadOnly = errors.New("badger: write in read-only transaction")

func (t *tx) getJSON(key []byte, dst any) error {
	item, err := t.txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error { return json.Unmarshal(v, dst) })
}

func (t *tx) setJSON(key []byte, v any) error {
	if !t.writable {
		return errReadOnly
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.txn.Set(key, b)
}

func (t *tx) GetReview(ctx context.Context, id string) (domain.Review, error) {
	var r domain.Review
	if err := t.getJSON(reviewKey(id), &r); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Review{}, fmt.Errorf("review %s: %w", id, domain.ErrNotFound)
		}
		return domain.Review{}, fmt.Errorf("get review %s: %w", id, err)
	}
	return r, nil
}

func (t *tx) PutReview(ctx context.Context, r domain.Review) error {
	if err := t.setJSON(reviewKey(r.ID), r); err != nil {
		return fmt.Errorf("put review %s: %w", r.ID, err)
	}
	// subjects never change after creation, so rewriting the index is harmless
	for _, s := range r.Subjects() {
		if err := t.txn.Set(subjectIndexKey(s, r.ID), nil); err != nil {
			return fmt.Errorf("index review %s: %w", r.ID, err)
		}
	}
	return nil
}

func (t *tx) ListReviews(ctx context.Context, s domain.SubjectRef, status domain.Status) ([]domain.Review, error) {
	ids := t.indexedIDs(subjectPrefix(s))
	out := make([]domain.Review, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := t.GetReview(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) indexedIDs(prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, string(it.Item().KeyCopy(nil)[len(prefix):]))
	}
	return ids
}

func (t *tx) ScanReviews(ctx context.Context, fn func(domain.Review) error) error {
	return t.scan(ctx, reviewPrefix, func(v []byte) error {
		var r domain.Review
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		return fn(r)
	})
}

func (t *tx) SubjectRevision(ctx context.Context, s domain.SubjectRef) (uint64, error) {
	item, err := t.txn.Get(revisionKey(s))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get revision %s: %w", s, err)
	}
	var rev uint64
	err = item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("revision %s: bad length %d", s, len(v))
		}
		rev = binary.BigEndian.Uint64(v)
		return nil
	})
	return rev, err
}

func (t *tx) BumpSubjectRevision(ctx context.Context, s domain.SubjectRef) error {
	if !t.writable {
		return errReadOnly
	}
	rev, err := t.SubjectRevision(ctx, s)
	if err != nil {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], rev+1)
	return t.txn.Set(revisionKey(s), b[:])
}

func (t *tx) GetEngagement(ctx context.Context, userID string) (domain.Engagement, bool, error) {
	var e domain.Engagement
	if err := t.getJSON(userKey(userID), &e); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.NewEngagement(userID), false, nil
		}
		return domain.Engagement{}, false, fmt.Errorf("get engagement %s: %w", userID, err)
	}
	e.Normalize()
	return e, true, nil
}

func (t *tx) PutEngagement(ctx context.Context, e domain.Engagement) error {
	if err := t.setJSON(userKey(e.UserID), e); err != nil {
		return fmt.Errorf("put engagement %s: %w", e.UserID, err)
	}
	return nil
}

func (t *tx) ScanEngagement(ctx context.Context, fn func(domain.Engagement) error) error {
	return t.scan(ctx, userPrefix, func(v []byte) error {
		var e domain.Engagement
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		e.Normalize()
		return fn(e)
	})
}

func (t *tx) scan(ctx context.Context, prefix []byte, fn func(v []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
