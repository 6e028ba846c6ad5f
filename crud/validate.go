package crud

import (
	"errors"

	"gorm.io/gorm"

	"posty/errs"
)

// collectInvalid merges the field messages of a validation error into v, so that a
// chain of validation functions reports every failing field instead of only the first.
// Any other error is returned untouched and stops the chain.
func collectInvalid(v *errs.Validation, err error) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) && e.Code == errs.EINVALID && len(e.Fields) > 0 {
		for field, msgs := range e.Fields {
			for _, msg := range msgs {
				v.Add(field, msg)
			}
		}
		return nil
	}
	return err
}

// notFound translates gorm's missing-record error into an application error
// with the given message. Other errors pass through.
func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Errorf(errs.ENOTFOUND, message)
	}
	return err
}

// offsetLimit applies paging to a query. A limit of zero or less means no limit.
func offsetLimit(offset, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if offset > 0 {
			db = db.Offset(offset)
		}
		if limit > 0 {
			db = db.Limit(limit)
		}
		return db
	}
}
