package app

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"housing_reviews/internal/domain"
)

// Reconcile compares every review's LikeCount with the engagement index
// from one snapshot. With repair set, each drifting review is corrected in
// its own transaction that recounts from fresh state, so a toggle racing the
// repair is never overwritten with a stale count.
func (s *EngagementService) Reconcile(ctx context.Context, repair bool, workers int) (domain.ReconcileReport, error) {
	var rep domain.ReconcileReport
	err := s.store.View(ctx, func(tx domain.Tx) error {
		actual := map[string]int64{}
		if err := tx.ScanEngagement(ctx, func(e domain.Engagement) error {
			rep.UsersScanned++
			for id, liked := range e.LikedReviewIDs {
				if liked {
					actual[id]++
				}
			}
			return nil
		}); err != nil {
			return err
		}
		return tx.ScanReviews(ctx, func(r domain.Review) error {
			rep.ReviewsScanned++
			if got := actual[r.ID]; got != r.LikeCount {
				rep.Drifts = append(rep.Drifts, domain.LikeDrift{ReviewID: r.ID, Stored: r.LikeCount, Actual: got})
			}
			return nil
		})
	})
	if err != nil {
		return domain.ReconcileReport{}, err
	}
	sort.Slice(rep.Drifts, func(i, j int) bool { return rep.Drifts[i].ReviewID < rep.Drifts[j].ReviewID })
	if !repair || len(rep.Drifts) == 0 {
		return rep, nil
	}

	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		firstErr   error
		acquireErr error
	)
	for _, d := range rep.Drifts {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		wg.Add(1)
		go func(reviewID string) {
			defer wg.Done()
			defer sem.Release(1)

			fixed, err := s.repairLikeCount(ctx, reviewID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Str("review", reviewID).Err(err).Msg("like count repair failed")
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if fixed {
				rep.Repaired++
			}
		}(d.ReviewID)
	}
	wg.Wait()
	if firstErr == nil {
		firstErr = acquireErr
	}
	return rep, firstErr
}

func (s *EngagementService) repairLikeCount(ctx context.Context, reviewID string) (bool, error) {
	var fixed bool
	err := updateWithRetry(ctx, s.store, s.retry, "repair_like_count", func(tx domain.Tx) error {
		fixed = false
		r, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		var n int64
		if err := tx.ScanEngagement(ctx, func(e domain.Engagement) error {
			if e.Likes(reviewID) {
				n++
			}
			return nil
		}); err != nil {
			return err
		}
		if n == r.LikeCount {
			return nil
		}
		log.Info().Str("review", reviewID).Int64("stored", r.LikeCount).Int64("actual", n).Msg("repairing like count")
		r.LikeCount = n
		fixed = true
		return tx.PutReview(ctx, r)
	})
	return fixed, err
}
