package domain

// Engagement is one user's likes and saves. The sets are membership maps;
// absent and false mean the same thing and false values are never stored.
type Engagement struct {
	UserID            string          `json:"userId"`
	LikedReviewIDs    map[string]bool `json:"likedReviewIds"`
	SavedApartmentIDs map[string]bool `json:"savedApartmentIds"`
	SavedLandlordIDs  map[string]bool `json:"savedLandlordIds"`
}

func NewEngagement(userID string) Engagement {
	return Engagement{
		UserID:            userID,
		LikedReviewIDs:    map[string]bool{},
		SavedApartmentIDs: map[string]bool{},
		SavedLandlordIDs:  map[string]bool{},
	}
}

// Normalize fills nil maps so decoded entries can be mutated in place.
func (e *Engagement) Normalize() {
	if e.LikedReviewIDs == nil {
		e.LikedReviewIDs = map[string]bool{}
	}
	if e.SavedApartmentIDs == nil {
		e.SavedApartmentIDs = map[string]bool{}
	}
	if e.SavedLandlordIDs == nil {
		e.SavedLandlordIDs = map[string]bool{}
	}
}

func (e Engagement) Likes(reviewID string) bool { return e.LikedReviewIDs[reviewID] }

func (e Engagement) Saved(s SubjectRef) bool {
	switch s.Kind {
	case SubjectApartment:
		return e.SavedApartmentIDs[s.ID]
	case SubjectLandlord:
		return e.SavedLandlordIDs[s.ID]
	}
	return false
}

// SetLiked flips membership and reports whether anything changed.
func (e *Engagement) SetLiked(reviewID string, liked bool) bool {
	return setMember(e.LikedReviewIDs, reviewID, liked)
}

// SetSaved flips membership and reports whether anything changed.
func (e *Engagement) SetSaved(s SubjectRef, saved bool) bool {
	switch s.Kind {
	case SubjectApartment:
		return setMember(e.SavedApartmentIDs, s.ID, saved)
	case SubjectLandlord:
		return setMember(e.SavedLandlordIDs, s.ID, saved)
	}
	return false
}

func setMember(m map[string]bool, id string, want bool) bool {
	if m[id] == want {
		return false
	}
	if want {
		m[id] = true
	} else {
		delete(m, id)
	}
	return true
}

type LikeResult struct {
	ReviewID  string `json:"reviewId"`
	Liked     bool   `json:"liked"`
	LikeCount int64  `json:"likeCount"`
	Changed   bool   `json:"changed"`
}

type SaveResult struct {
	Kind    SubjectKind `json:"kind"`
	ID      string      `json:"id"`
	Saved   bool        `json:"saved"`
	Changed bool        `json:"changed"`
}

// LikeDrift is a review whose stored counter disagrees with the engagement index.
type LikeDrift struct {
	ReviewID string `json:"reviewId"`
	Stored   int64  `json:"stored"`
	Actual   int64  `json:"actual"`
}

type ReconcileReport struct {
	ReviewsScanned int         `json:"reviewsScanned"`
	UsersScanned   int         `json:"usersScanned"`
	Drifts         []LikeDrift `json:"drifts"`
	Repaired       int         `json:"repaired"`
}
