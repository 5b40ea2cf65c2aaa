package store

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestClassifyUniqueViolationIsFatal(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	classified := classify(pgErr)
	require.True(t, errors.Is(classified, ErrFatal))
	require.False(t, errors.Is(classified, ErrTransient))
}

func TestClassifyUnknownPgErrorIsTransient(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40001", Message: "serialization failure"}
	classified := classify(pgErr)
	require.True(t, errors.Is(classified, ErrTransient))
}

func TestClassifyPlainErrorIsTransient(t *testing.T) {
	classified := classify(errors.New("connection reset"))
	require.True(t, errors.Is(classified, ErrTransient))
}

func TestClassifyNilIsNil(t *testing.T) {
	require.NoError(t, classify(nil))
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	require.True(t, errors.Is(ErrInvalidPrice, ErrValidation))
	require.True(t, errors.Is(ErrInvalidPossession, ErrValidation))
	require.False(t, isTransient(ErrInvalidPrice))
}
