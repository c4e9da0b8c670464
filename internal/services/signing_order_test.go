package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/documenso/documenso-sub011/internal/models"
)

func orderedRecipient(id string, order *int, role models.RecipientRole, status models.SigningStatus) models.Recipient {
	r := models.Recipient{Role: role, SigningOrder: order, SigningStatus: status}
	r.ID = id
	return r
}

func TestSortRecipientsNullsLastWithIDTieBreak(t *testing.T) {
	recipients := []models.Recipient{
		orderedRecipient("d", nil, models.RecipientRoleSigner, models.SigningStatusNotSigned),
		orderedRecipient("c", intPtr(2), models.RecipientRoleSigner, models.SigningStatusNotSigned),
		orderedRecipient("b", intPtr(1), models.RecipientRoleSigner, models.SigningStatusNotSigned),
		orderedRecipient("a", intPtr(2), models.RecipientRoleSigner, models.SigningStatusNotSigned),
	}

	sorted := SortRecipients(recipients)

	ids := make([]string, len(sorted))
	for i, r := range sorted {
		ids[i] = r.ID
	}
	require.Equal(t, []string{"b", "a", "c", "d"}, ids)

	// The input slice is left untouched.
	require.Equal(t, "d", recipients[0].ID)
}

func TestActionableRecipientsSequentialTakesOnlyTheHead(t *testing.T) {
	recipients := []models.Recipient{
		orderedRecipient("a", intPtr(1), models.RecipientRoleSigner, models.SigningStatusSigned),
		orderedRecipient("b", intPtr(2), models.RecipientRoleSigner, models.SigningStatusNotSigned),
		orderedRecipient("c", intPtr(3), models.RecipientRoleSigner, models.SigningStatusNotSigned),
	}

	actionable := ActionableRecipients(models.SigningOrderSequential, recipients)
	require.Len(t, actionable, 1)
	require.Equal(t, "b", actionable[0].ID)

	parallel := ActionableRecipients(models.SigningOrderParallel, recipients)
	require.Len(t, parallel, 2)
}

func TestActionableRecipientsSkipsCC(t *testing.T) {
	recipients := []models.Recipient{
		orderedRecipient("cc", intPtr(1), models.RecipientRoleCC, models.SigningStatusNotSigned),
		orderedRecipient("signer", intPtr(2), models.RecipientRoleSigner, models.SigningStatusNotSigned),
	}

	actionable := ActionableRecipients(models.SigningOrderSequential, recipients)
	require.Len(t, actionable, 1)
	require.Equal(t, "signer", actionable[0].ID)
}

func TestIsRecipientTurn(t *testing.T) {
	recipients := []models.Recipient{
		orderedRecipient("a", intPtr(1), models.RecipientRoleSigner, models.SigningStatusNotSigned),
		orderedRecipient("b", intPtr(2), models.RecipientRoleSigner, models.SigningStatusNotSigned),
	}

	require.True(t, IsRecipientTurn(models.SigningOrderSequential, recipients, "a"))
	require.False(t, IsRecipientTurn(models.SigningOrderSequential, recipients, "b"))
	require.True(t, IsRecipientTurn(models.SigningOrderParallel, recipients, "b"))
}

func TestNextRecipientAfter(t *testing.T) {
	recipients := []models.Recipient{
		orderedRecipient("a", intPtr(1), models.RecipientRoleSigner, models.SigningStatusSigned),
		orderedRecipient("cc", intPtr(2), models.RecipientRoleCC, models.SigningStatusNotSigned),
		orderedRecipient("b", intPtr(3), models.RecipientRoleSigner, models.SigningStatusNotSigned),
	}

	next := NextRecipientAfter(recipients, "a")
	require.NotNil(t, next)
	require.Equal(t, "b", next.ID)

	require.Nil(t, NextRecipientAfter(recipients, "b"))
}

func TestRemainingBlockers(t *testing.T) {
	recipients := []models.Recipient{
		orderedRecipient("a", nil, models.RecipientRoleSigner, models.SigningStatusSigned),
		orderedRecipient("b", nil, models.RecipientRoleViewer, models.SigningStatusNotSigned),
		orderedRecipient("cc", nil, models.RecipientRoleCC, models.SigningStatusNotSigned),
	}

	// Viewers block until marked signed; CC never does.
	require.Equal(t, 1, remainingBlockers(recipients))
}
