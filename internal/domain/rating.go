package domain

// RatingSummary holds averages over a review set. A nil average means the set
// was empty; NaN is never produced.
type RatingSummary struct {
	Count      int                   `json:"count"`
	Overall    *float64              `json:"overallAverage"`
	Categories map[Category]*float64 `json:"categoryAverages"`
}

// Aggregate averages the given reviews. The caller filters to APPROVED;
// nothing here looks at Status. Sums are integers so input order cannot
// change the result.
func Aggregate(reviews []Review) RatingSummary {
	out := RatingSummary{
		Count:      len(reviews),
		Categories: make(map[Category]*float64, len(Categories)),
	}
	for _, c := range Categories {
		out.Categories[c] = nil
	}
	if len(reviews) == 0 {
		return out
	}

	var overall int64
	sums := make(map[Category]int64, len(Categories))
	for _, r := range reviews {
		overall += int64(r.OverallRating)
		for _, c := range Categories {
			sums[c] += int64(r.Ratings.Get(c))
		}
	}
	n := float64(len(reviews))
	out.Overall = mean(overall, n)
	for _, c := range Categories {
		out.Categories[c] = mean(sums[c], n)
	}
	return out
}

func mean(sum int64, n float64) *float64 {
	v := float64(sum) / n
	return &v
}
