package domain

import "time"

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDeclined Status = "DECLINED"
	StatusDeleted  Status = "DELETED"
)

// Statuses lists every member of the moderation enum.
var Statuses = []Status{StatusPending, StatusApproved, StatusDeclined, StatusDeleted}

type SubjectKind string

const (
	SubjectApartment SubjectKind = "apartment"
	SubjectLandlord  SubjectKind = "landlord"
)

// SubjectRef points at the apartment or landlord a review or save targets.
type SubjectRef struct {
	Kind SubjectKind
	ID   string
}

func Apartment(id string) SubjectRef { return SubjectRef{Kind: SubjectApartment, ID: id} }
func Landlord(id string) SubjectRef  { return SubjectRef{Kind: SubjectLandlord, ID: id} }

func (s SubjectRef) String() string { return string(s.Kind) + ":" + s.ID }

type Category string

const (
	CategoryLocation      Category = "location"
	CategorySafety        Category = "safety"
	CategoryValue         Category = "value"
	CategoryMaintenance   Category = "maintenance"
	CategoryCommunication Category = "communication"
	CategoryCondition     Category = "condition"
)

var Categories = []Category{
	CategoryLocation, CategorySafety, CategoryValue,
	CategoryMaintenance, CategoryCommunication, CategoryCondition,
}

type CategoryRatings struct {
	Location      int `json:"location" validate:"required,min=1,max=5"`
	Safety        int `json:"safety" validate:"required,min=1,max=5"`
	Value         int `json:"value" validate:"required,min=1,max=5"`
	Maintenance   int `json:"maintenance" validate:"required,min=1,max=5"`
	Communication int `json:"communication" validate:"required,min=1,max=5"`
	Condition     int `json:"condition" validate:"required,min=1,max=5"`
}

func (c CategoryRatings) Get(cat Category) int {
	switch cat {
	case CategoryLocation:
		return c.Location
	case CategorySafety:
		return c.Safety
	case CategoryValue:
		return c.Value
	case CategoryMaintenance:
		return c.Maintenance
	case CategoryCommunication:
		return c.Communication
	case CategoryCondition:
		return c.Condition
	}
	return 0
}

// ReviewContent is the user-editable part of a review.
type ReviewContent struct {
	OverallRating int             `json:"overallRating" validate:"required,min=1,max=5"`
	Ratings       CategoryRatings `json:"ratings"`
	Body          string          `json:"body" validate:"max=10000"`
	Photos        []string        `json:"photos" validate:"max=20,dive,required,url"`
	Bedrooms      *int            `json:"bedrooms,omitempty" validate:"omitempty,min=0,max=20"`
	Price         *int64          `json:"price,omitempty" validate:"omitempty,min=0"`
}

type Review struct {
	ID           string    `json:"id"`
	ApartmentID  *string   `json:"apartmentId,omitempty"`
	LandlordID   string    `json:"landlordId"`
	AuthorUserID *string   `json:"authorUserId,omitempty"`
	ReviewContent
	Status      Status    `json:"status"`
	LikeCount   int64     `json:"likeCount"`
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Subjects returns every subject the review counts toward.
func (r Review) Subjects() []SubjectRef {
	out := []SubjectRef{Landlord(r.LandlordID)}
	if r.ApartmentID != nil && *r.ApartmentID != "" {
		out = append(out, Apartment(*r.ApartmentID))
	}
	return out
}

// About reports whether the review targets s.
func (r Review) About(s SubjectRef) bool {
	switch s.Kind {
	case SubjectLandlord:
		return r.LandlordID == s.ID
	case SubjectApartment:
		return r.ApartmentID != nil && *r.ApartmentID == s.ID
	}
	return false
}

// NewReview is the input to submitReview.
type NewReview struct {
	ApartmentID *string
	LandlordID  string
	Content     ReviewContent
}
