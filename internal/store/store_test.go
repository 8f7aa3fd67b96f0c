package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antonvlk/meteohub/internal/models"
	apperrors "github.com/antonvlk/meteohub/pkg/errors"
)

func TestNewReadingStoreRequiresDB(t *testing.T) {
	_, err := NewReadingStore(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "db is required")
}

func TestMapError(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, true},
		{"busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"table busy", errors.New("database table is locked: readings"), true},
		{"constraint", errors.New("NOT NULL constraint failed: readings.zone"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := s.mapError("insert", tt.err)
			require.Error(t, mapped)
			require.Equal(t, tt.unavailable, apperrors.IsUnavailable(mapped))
			if !tt.unavailable {
				require.Contains(t, mapped.Error(), "insert")
				require.ErrorIs(t, mapped, tt.err)
			}
		})
	}
}

func TestIsBusy(t *testing.T) {
	require.False(t, isBusy(nil))
	require.False(t, isBusy(errors.New("no such table: readings")))
	require.True(t, isBusy(errors.New("database is locked")))
	require.True(t, isBusy(errors.New("sqlite3: SQLITE_BUSY")))
}

func TestWriterSlotHonoursDeadline(t *testing.T) {
	s := newTestStore(t, WithTimeout(50*time.Millisecond))

	// park a phantom writer in the slot so the insert has to wait
	s.writeMu <- struct{}{}

	reading := makeReading(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC), models.SensorKindDHT, "indoor", 20.0)
	_, err := s.Insert(context.Background(), reading)
	require.Error(t, err)
	require.True(t, apperrors.IsUnavailable(err), "a held writer slot reports as retryable, got %v", err)

	<-s.writeMu

	_, err = s.Insert(context.Background(), reading)
	require.NoError(t, err)
}

func TestQueriesMapCancelledContext(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.QueryLatest(ctx, Selector{})
	require.Error(t, err)
	require.True(t, apperrors.IsUnavailable(err), "got %v", err)
}

func TestOperationsTolerateNilContext(t *testing.T) {
	s := newTestStore(t)

	var ctx context.Context
	latest, err := s.QueryLatest(ctx, Selector{})
	require.NoError(t, err)
	require.Nil(t, latest)
}
