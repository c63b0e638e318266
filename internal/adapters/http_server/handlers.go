package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"housing_reviews/internal/app"
	"housing_reviews/internal/domain"
)

type Handlers struct {
	Reviews    *app.ReviewService
	Engagement *app.EngagementService
	Q          *app.QueryService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const maxBody = 1 << 20

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/reviews", h.submitReview)
	s.mux.Get("/v1/reviews/{id}", h.getReview)
	s.mux.Put("/v1/reviews/{id}", h.editReview)
	s.mux.Put("/v1/reviews/{id}/status", h.setStatus)
	s.mux.Post("/v1/reviews/{id}/report", h.reportReview)
	s.mux.Put("/v1/reviews/{id}/like", h.toggleLike)

	s.mux.Get("/v1/{kind:apartments|landlords}/{id}/reviews", h.listReviews)
	s.mux.Get("/v1/{kind:apartments|landlords}/{id}/rating", h.ratingSummary)
	s.mux.Put("/v1/{kind:apartments|landlords}/{id}/save", h.toggleSave)
	s.mux.Get("/v1/{kind:apartments|landlords}/{id}/save", h.checkSaved)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrMissingSubject),
		errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrInvalidField):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("unhandled error")
		detail = "internal error"
	}
	writeProblem(w, status, http.StatusText(status), detail)
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCacheable sends v with a weak ETag and honors If-None-Match.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routeOf(r)).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst); err != nil {
		return fmt.Errorf("%w: body: %v", domain.ErrInvalidField, err)
	}
	return nil
}

func requireUser(r *http.Request) (domain.Identity, error) {
	id, ok := domain.IdentityFrom(r.Context())
	if !ok {
		return domain.Identity{}, domain.ErrNotAuthenticated
	}
	return id, nil
}

func requireModerator(r *http.Request) error {
	id, err := requireUser(r)
	if err != nil {
		return err
	}
	if !id.Moderator {
		return fmt.Errorf("%w: moderator role required", domain.ErrForbidden)
	}
	return nil
}

func subjectOf(r *http.Request) domain.SubjectRef {
	id := chi.URLParam(r, "id")
	if chi.URLParam(r, "kind") == "apartments" {
		return domain.Apartment(id)
	}
	return domain.Landlord(id)
}

// reviewView is a review as rendered to a caller, with their own like state
// when they are signed in.
type reviewView struct {
	domain.Review
	Liked *bool `json:"liked,omitempty"`
}

func (h *Handlers) views(ctx context.Context, rs []domain.Review) ([]reviewView, error) {
	out := make([]reviewView, len(rs))
	for i, r := range rs {
		out[i] = reviewView{Review: r}
	}
	id, ok := domain.IdentityFrom(ctx)
	if !ok || len(rs) == 0 {
		return out, nil
	}
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	liked, err := h.Engagement.LikedByUser(ctx, id.UserID, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		v := liked[out[i].ID]
		out[i].Liked = &v
	}
	return out, nil
}

type submitRequest struct {
	ApartmentID *string `json:"apartmentId"`
	LandlordID  string  `json:"landlordId"`
	domain.ReviewContent
}

func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	id, err := requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	rv, err := h.Reviews.SubmitReview(r.Context(), id.UserID, domain.NewReview{
		ApartmentID: req.ApartmentID,
		LandlordID:  req.LandlordID,
		Content:     req.ReviewContent,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/reviews/"+rv.ID)
	writeJSON(w, http.StatusCreated, rv)
}

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	rv, err := h.Q.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	// unpublished reviews are visible to moderators and their author only
	if rv.Status != domain.StatusApproved {
		caller, ok := domain.IdentityFrom(r.Context())
		isAuthor := ok && rv.AuthorUserID != nil && *rv.AuthorUserID == caller.UserID
		if !ok || !(caller.Moderator || isAuthor) {
			writeError(w, fmt.Errorf("%w: review", domain.ErrNotFound))
			return
		}
	}
	out, err := h.views(r.Context(), []domain.Review{rv})
	if err != nil {
		writeError(w, err)
		return
	}
	writeCacheable(w, r, out[0])
}

func (h *Handlers) editReview(w http.ResponseWriter, r *http.Request) {
	id, err := requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var c domain.ReviewContent
	if err := decode(w, r, &c); err != nil {
		writeError(w, err)
		return
	}
	rv, err := h.Reviews.EditReview(r.Context(), id, chi.URLParam(r, "id"), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (h *Handlers) setStatus(w http.ResponseWriter, r *http.Request) {
	if err := requireModerator(r); err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	rv, err := h.Reviews.SetReviewStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (h *Handlers) reportReview(w http.ResponseWriter, r *http.Request) {
	id, err := requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rv, err := h.Reviews.ReportReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	log.Info().Str("review", rv.ID).Str("reporter", id.UserID).Msg("review reported")
	writeJSON(w, http.StatusOK, map[string]any{"id": rv.ID, "status": rv.Status})
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	status := domain.StatusApproved
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := domain.ParseStatus(s)
		if err != nil {
			writeError(w, err)
			return
		}
		status = st
	}
	if status != domain.StatusApproved {
		if err := requireModerator(r); err != nil {
			writeError(w, err)
			return
		}
	}
	subj := subjectOf(r)
	rs, err := h.Q.ListReviews(r.Context(), subj, status)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.views(r.Context(), rs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCacheable(w, r, map[string]any{
		"subject": map[string]string{"kind": string(subj.Kind), "id": subj.ID},
		"status":  status,
		"count":   len(items),
		"items":   items,
	})
}

func (h *Handlers) ratingSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Q.RatingSummary(r.Context(), subjectOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCacheable(w, r, sum)
}

func (h *Handlers) toggleLike(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Liked *bool `json:"liked"`
	}
	id, err := requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Liked == nil {
		writeError(w, fmt.Errorf("%w: liked", domain.ErrMissingField))
		return
	}
	res, err := h.Engagement.ToggleLike(r.Context(), id.UserID, chi.URLParam(r, "id"), *req.Liked)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) toggleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Saved *bool `json:"saved"`
	}
	id, err := requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Saved == nil {
		writeError(w, fmt.Errorf("%w: saved", domain.ErrMissingField))
		return
	}
	res, err := h.Engagement.ToggleSave(r.Context(), id.UserID, subjectOf(r), *req.Saved)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) checkSaved(w http.ResponseWriter, r *http.Request) {
	id, err := requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	subj := subjectOf(r)
	saved, err := h.Engagement.CheckSaved(r.Context(), id.UserID, subj)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SaveResult{Kind: subj.Kind, ID: subj.ID, Saved: saved})
}
