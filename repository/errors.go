package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
)

// dbError maps the two gorm sentinel errors callers branch on to app
// errors. Anything else is returned unchanged for the caller to wrap.
func dbError(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(err, apperr.CodeNotFound, entity+" not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(err, apperr.CodeConflict, entity+" already exists")
	default:
		return err
	}
}
