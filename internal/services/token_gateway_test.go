package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/documenso/documenso-sub011/internal/models"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
)

func TestResolveUnknownTokenUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.gateway.Resolve(context.Background(), "no-such-token")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, _, err = env.gateway.Resolve(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestResolveReturnsRecipientAndEnvelope(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusDraft, models.SigningOrderParallel,
		recipientSpec{role: models.RecipientRoleCC, email: "cc@example.com"},
	)

	recipient, resolved, err := env.gateway.Resolve(context.Background(), envelope.Recipients[0].Token)
	require.NoError(t, err)
	require.Equal(t, envelope.Recipients[0].ID, recipient.ID)
	require.Equal(t, envelope.ID, resolved.ID)
}

func TestResolveForActionGatesRoleAndStatus(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel,
		recipientSpec{role: models.RecipientRoleSigner, email: "signer@example.com"},
		recipientSpec{role: models.RecipientRoleCC, email: "cc@example.com"},
		recipientSpec{role: models.RecipientRoleViewer, email: "viewer@example.com"},
	)

	_, _, err := env.gateway.ResolveForAction(context.Background(), envelope.Recipients[0].Token)
	require.NoError(t, err)

	// CC and VIEWER tokens resolve for reading but not for field mutations.
	for _, idx := range []int{1, 2} {
		_, _, err := env.gateway.Resolve(context.Background(), envelope.Recipients[idx].Token)
		require.NoError(t, err)
		_, _, err = env.gateway.ResolveForAction(context.Background(), envelope.Recipients[idx].Token)
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	}
}

func TestAuthorizeField(t *testing.T) {
	recipient := &models.Recipient{}
	recipient.ID = "r1"

	mine := &models.Field{RecipientID: "r1"}
	theirs := &models.Field{RecipientID: "r2"}

	require.NoError(t, authorizeField(recipient, mine))
	require.ErrorIs(t, authorizeField(recipient, theirs), apperrors.ErrUnauthorized)
}
