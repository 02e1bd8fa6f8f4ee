// Package services holds the business rules of the API. Handlers translate
// HTTP into calls on these services; repositories only persist.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/repository"
)

// Notifier sends the application's emails. Implementations never fail the caller.
type Notifier interface {
	Welcome(ctx context.Context, to, name string)
	ResetCode(ctx context.Context, to, name, code string, ttl time.Duration)
	LoginCode(ctx context.Context, to, name, code string, ttl time.Duration)
	AppointmentScheduled(ctx context.Context, to, doctorName, patientName string, at time.Time, reason, roomURL string)
	AppointmentCancelled(ctx context.Context, to, doctorName, patientName string, at time.Time)
}

// ListResult is one page of a listing.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func newListResult[T any](items []T, page repository.Page, total int64) *ListResult[T] {
	page = page.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(page.Limit) - 1) / int64(page.Limit))
	return &ListResult[T]{Items: items, Page: page.Page, Limit: page.Limit, Total: total, TotalPages: pages}
}

const codeDigits = 6

// GenerateCode returns a uniformly random numeric code of six digits.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// notFound maps a repository miss to a NotFound error naming the entity,
// and anything else to an internal error.
func notFound(err error, entity, field string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(entity+" not found").WithField(field, "not found")
	}
	return apperrors.Internal("failed to load "+entity, err)
}

// writeError maps repository write failures to domain errors.
func writeError(err error, entity string, uniqueFields ...string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateKey):
		appErr := apperrors.New(apperrors.KindDuplicateKey, entity+" already registered")
		msg := strings.ToLower(err.Error())
		if i := strings.LastIndex(msg, "for key"); i >= 0 {
			msg = msg[i:]
		}
		for _, f := range uniqueFields {
			if strings.Contains(msg, strings.ToLower(f)) {
				appErr.WithField(f, "already registered")
			}
		}
		return appErr
	case errors.Is(err, repository.ErrReferenced):
		return apperrors.Conflict(entity + " still has dependent records")
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(entity + " not found")
	}
	return apperrors.Internal("failed to save "+entity, err)
}
