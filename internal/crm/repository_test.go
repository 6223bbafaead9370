package crm

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepositoryUpsertCustomer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()
	id := uuid.New()

	rows := pgxmock.NewRows([]string{
		"id", "name", "phone", "phone_formatted", "phone_key", "customer_type",
		"tags", "total_spend", "last_interaction_at", "created_at",
	}).AddRow(id, "Foram", "919969528677", "+91 99695 28677", "9969528677", "retail",
		[]string{"whatsapp/new"}, 0.0, now, now)

	mock.ExpectQuery("INSERT INTO customers").
		WithArgs(pgxmock.AnyArg(), "Foram", "919969528677", "+91 99695 28677", "9969528677",
			"retail", []string{"whatsapp/new"}, 0.0, now).
		WillReturnRows(rows)

	saved, err := repo.UpsertCustomer(context.Background(), &Customer{
		Name:              "Foram",
		Phone:             "919969528677",
		PhoneFormatted:    "+91 99695 28677",
		PhoneKey:          "9969528677",
		CustomerType:      "retail",
		Tags:              []string{"whatsapp/new"},
		LastInteractionAt: now,
	})
	require.NoError(t, err)
	require.Equal(t, id, saved.ID)
	require.Equal(t, "9969528677", saved.PhoneKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryFindActiveTopicNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	customerID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM topics").
		WithArgs(customerID, TopicOpen, TopicInProgress).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "customer_id", "conversation_id", "type", "title", "status",
			"last_customer_message", "last_customer_message_at", "created_at",
		}))

	_, err = repo.FindActiveTopic(context.Background(), customerID)
	require.ErrorIs(t, err, ErrTopicNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncatePreviewKeepsRuneBoundary(t *testing.T) {
	devanagari := strings.Repeat("क्या आपके पास आईफोन है? ", 20)
	out := truncatePreview(devanagari)

	require.True(t, utf8.ValidString(out))
	require.Equal(t, 120, utf8.RuneCountInString(out))

	short := "namaste"
	require.Equal(t, short, truncatePreview(short))
}
