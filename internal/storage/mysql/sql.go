package mysql

const reviewColumns = `
  id,
  apartment_id,
  landlord_id,
  author_user_id,
  overall_rating,
  r_location,
  r_safety,
  r_value,
  r_maintenance,
  r_communication,
  r_condition,
  body,
  photos,
  bedrooms,
  price,
  status,
  like_count,
  submitted_at,
  updated_at`

const getReviewSQL = `SELECT` + reviewColumns + `
FROM reviews
WHERE id = ?`

// Subjects are immutable, so the upsert never touches apartment_id,
// landlord_id, author_user_id or submitted_at.
const upsertReviewSQL = `
INSERT INTO reviews
  (id, apartment_id, landlord_id, author_user_id, overall_rating,
   r_location, r_safety, r_value, r_maintenance, r_communication, r_condition,
   body, photos, bedrooms, price, status, like_count, submitted_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  overall_rating  = VALUES(overall_rating),
  r_location      = VALUES(r_location),
  r_safety        = VALUES(r_safety),
  r_value         = VALUES(r_value),
  r_maintenance   = VALUES(r_maintenance),
  r_communication = VALUES(r_communication),
  r_condition     = VALUES(r_condition),
  body            = VALUES(body),
  photos          = VALUES(photos),
  bedrooms        = VALUES(bedrooms),
  price           = VALUES(price),
  status          = VALUES(status),
  like_count      = VALUES(like_count),
  updated_at      = VALUES(updated_at)
`

// subject column names are chosen from a fixed map, never from input
var listReviewsSQL = map[string]string{
	"apartment": `SELECT` + reviewColumns + `
FROM reviews
WHERE apartment_id = ? AND status = ?
ORDER BY submitted_at DESC, id DESC`,
	"landlord": `SELECT` + reviewColumns + `
FROM reviews
WHERE landlord_id = ? AND status = ?
ORDER BY submitted_at DESC, id DESC`,
}

const scanReviewsSQL = `SELECT` + reviewColumns + `
FROM reviews
ORDER BY id`

const getRevisionSQL = `
SELECT rev FROM subject_revisions WHERE kind = ? AND subject_id = ?`

const bumpRevisionSQL = `
INSERT INTO subject_revisions (kind, subject_id, rev)
VALUES (?, ?, 1)
ON DUPLICATE KEY UPDATE rev = rev + 1`

const getEngagementSQL = `
SELECT user_id, liked_review_ids, saved_apartment_ids, saved_landlord_ids
FROM engagement
WHERE user_id = ?`

const upsertEngagementSQL = `
INSERT INTO engagement
  (user_id, liked_review_ids, saved_apartment_ids, saved_landlord_ids)
VALUES
  (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  liked_review_ids    = VALUES(liked_review_ids),
  saved_apartment_ids = VALUES(saved_apartment_ids),
  saved_landlord_ids  = VALUES(saved_landlord_ids),
  updated_at          = CURRENT_TIMESTAMP(6)
`

const scanEngagementSQL = `
SELECT user_id, liked_review_ids, saved_apartment_ids, saved_landlord_ids
FROM engagement
ORDER BY user_id`
