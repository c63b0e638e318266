package app

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"housing_reviews/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateContent maps validator failures onto the domain taxonomy: absent or
// zero required values are ErrMissingField, everything else ErrInvalidField.
func validateContent(c domain.ReviewContent) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidField, err)
	}
	var missing, invalid []string
	for _, fe := range verrs {
		name := strings.TrimPrefix(fe.Namespace(), "ReviewContent.")
		if fe.Tag() == "required" {
			missing = append(missing, name)
		} else {
			invalid = append(invalid, name+" ("+fe.Tag()+")")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrMissingField, strings.Join(missing, ", "))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidField, strings.Join(invalid, ", "))
}

// maxSubjectIDLen matches the subject id columns in migrations/001_init.sql.
const maxSubjectIDLen = 64

// validateSubjectID rejects ids that are too long for storage or carry
// control characters.
func validateSubjectID(field, id string) error {
	if len(id) > maxSubjectIDLen {
		return fmt.Errorf("%w: %s longer than %d bytes", domain.ErrInvalidField, field, maxSubjectIDLen)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrInvalidField, field)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %s contains control characters", domain.ErrInvalidField, field)
		}
	}
	return nil
}
