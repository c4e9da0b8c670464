package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/models"
)

func TestAuditAppendAndReplay(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel)

	for i := 0; i < 5; i++ {
		require.NoError(t, env.audit.Append(context.Background(), AuditEntry{
			EnvelopeID: envelope.ID,
			Type:       models.AuditEventEnvelopeViewed,
			Email:      fmt.Sprintf("viewer%d@example.com", i),
		}))
	}

	entries, err := env.audit.Replay(context.Background(), envelope.ID)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// Replay is chronological.
	for i := 1; i < len(entries); i++ {
		require.False(t, entries[i].CreatedAt.Before(entries[i-1].CreatedAt))
	}
}

func TestAuditCursorPagination(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel)

	for i := 0; i < 5; i++ {
		require.NoError(t, env.audit.Append(context.Background(), AuditEntry{
			EnvelopeID: envelope.ID,
			Type:       models.AuditEventEnvelopeViewed,
			Email:      fmt.Sprintf("viewer%d@example.com", i),
		}))
	}

	var collected []models.EnvelopeAuditLog
	cursor := ""
	pages := 0
	for {
		page, next, err := env.audit.Find(context.Background(), envelope.ID, cursor, 2, false)
		require.NoError(t, err)
		collected = append(collected, page...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}

	require.Equal(t, 3, pages)
	require.Len(t, collected, 5)

	// No entry is repeated or skipped across page boundaries.
	seen := map[string]bool{}
	for _, entry := range collected {
		require.False(t, seen[entry.ID])
		seen[entry.ID] = true
	}
}

func TestAuditFindBogusCursorRejected(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel)

	_, _, err := env.audit.Find(context.Background(), envelope.ID, "not-a-cursor", 10, false)
	require.Error(t, err)
}

func TestAuditEntriesSurviveRollbackTogether(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel)

	// A failing transaction takes its audit entry down with it.
	err := env.db.Transaction(func(tx *gorm.DB) error {
		if err := env.audit.AppendTx(tx, AuditEntry{
			EnvelopeID: envelope.ID,
			Type:       models.AuditEventEnvelopeViewed,
		}); err != nil {
			return err
		}
		return fmt.Errorf("forced rollback")
	})
	require.Error(t, err)

	require.EqualValues(t, 0, env.auditCount(envelope.ID, models.AuditEventEnvelopeViewed))
}
