package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"expense-approval/internal/apperror"
)

const timeLayout = "2006-01-02 15:04:05"

// storeErr classifies a repository error: missing rows become NotFound, the rest
// become persistence errors naming op.
func storeErr(op, entity string, id interface{}, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(entity, fmt.Sprint(id))
	}
	return apperror.Wrap(op, err)
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid %s: %q", field, s)
	}
	return id, nil
}

func parseOptionalID(field string, s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := parseID(field, *s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
