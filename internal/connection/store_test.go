package connection

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
)

func TestMemoryStoreCutoverMatchesAcrossFormats(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordCutover(context.Background(), "919969528677", at))

	got, err := store.CutoverFor(context.Background(), "9969528677")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Equal(at))

	missing, err := store.CutoverFor(context.Background(), "918888888888")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestMemoryStoreReconnectMovesCutoverForward(t *testing.T) {
	store := NewMemoryStore()
	first := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)

	require.NoError(t, store.RecordCutover(context.Background(), "919969528677", first))
	require.NoError(t, store.RecordCutover(context.Background(), "919969528677", second))

	got, err := store.CutoverFor(context.Background(), "919969528677")
	require.NoError(t, err)
	require.True(t, got.Equal(second))
}

func TestPostgresStoreUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, phone.NewNormalizer("91"))
	at := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO connection_cutovers").
		WithArgs("9969528677", "919969528677", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordCutover(context.Background(), "919969528677", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
