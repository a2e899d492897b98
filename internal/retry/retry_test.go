package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/domain"
	"chimera/internal/logger"
)

func fastPolicy(tries uint) Policy {
	return Policy{MaxTries: tries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(3), logger.Nop(), "list", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &domain.TransientSourceError{Op: "list", StatusCode: 503, Err: errors.New("unavailable")}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), nil, "fetch", func() (string, error) {
		calls++
		return "", &domain.NotFoundError{ID: "p1"}
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestDoGivesUpAfterMaxTries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(2), nil, "embed", func() (int, error) {
		calls++
		return 0, &domain.TransientSourceError{Op: "embed", StatusCode: 429, Err: errors.New("slow down")}
	})

	assert.Equal(t, 2, calls)
	assert.True(t, domain.IsTransient(err))
}

func TestDoPermanentOnLastTry(t *testing.T) {
	_, err := Do(context.Background(), fastPolicy(1), nil, "fetch", func() (int, error) {
		return 0, &domain.NotFoundError{ID: "p1"}
	})

	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}
