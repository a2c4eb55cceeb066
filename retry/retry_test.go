package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxRetries: 5, InitialInterval: time.Millisecond}

	attempts := 0
	err := p.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsPolicy(t *testing.T) {
	p := Policy{MaxRetries: 2, InitialInterval: time.Millisecond}

	attempts := 0
	failure := errors.New("still broken")
	err := p.Do(context.Background(), func() error {
		attempts++
		return failure
	})
	require.ErrorIs(t, err, failure)
	assert.Equal(t, 3, attempts)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	p := Policy{MaxRetries: 5, InitialInterval: time.Millisecond}

	attempts := 0
	failure := errors.New("bad request")
	err := p.Do(context.Background(), func() error {
		attempts++
		return Permanent(failure)
	})
	require.ErrorIs(t, err, failure)
	assert.Equal(t, 1, attempts)
}

func TestDoHonorsContext(t *testing.T) {
	p := Policy{MaxRetries: 100, InitialInterval: 10 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, func() error {
		return errors.New("transient")
	})
	require.Error(t, err)
}
