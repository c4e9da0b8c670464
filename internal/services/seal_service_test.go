package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/internal/pdf/formdoc"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
)

func TestSealRequiresAllBlockersSigned(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel,
		recipientSpec{role: models.RecipientRoleSigner, email: "a@example.com"},
		recipientSpec{role: models.RecipientRoleViewer, email: "v@example.com"},
	)

	err := env.sealer.Seal(context.Background(), envelope.ID)
	require.ErrorIs(t, err, apperrors.ErrDocumentNotComplete)
	require.Equal(t, models.EnvelopeStatusPending, env.reloadEnvelope(envelope.ID).Status)
}

func TestSealFlattensDocumentForm(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")

	// The payload starts with interactive form fields.
	blobID, err := env.blobs.Put(context.Background(), env.formPayload("name", "title"))
	require.NoError(t, err)

	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel,
		recipientSpec{role: models.RecipientRoleSigner, email: "a@example.com",
			fields: []fieldSpec{{kind: models.FieldTypeText, required: true}}},
	)
	require.NoError(t, env.db.Model(&models.EnvelopeItem{}).
		Where("envelope_id = ?", envelope.ID).
		Update("blob_id", blobID).Error)

	_, err = env.signing.SignField(context.Background(), SignFieldInput{
		Token: envelope.Recipients[0].Token, FieldID: envelope.Fields[0].ID, Value: "Alice Harper",
	})
	require.NoError(t, err)
	_, err = env.signing.CompleteRecipient(context.Background(), CompleteRecipientInput{
		Token: envelope.Recipients[0].Token,
	})
	require.NoError(t, err)

	reloaded := env.reloadEnvelope(envelope.ID)
	require.Equal(t, models.EnvelopeStatusCompleted, reloaded.Status)
	require.NotNil(t, reloaded.Items[0].SealedBlobID)

	sealed, err := env.blobs.Get(context.Background(), *reloaded.Items[0].SealedBlobID)
	require.NoError(t, err)

	doc, err := formdoc.NewEngine().Load(sealed)
	require.NoError(t, err)
	require.Empty(t, doc.Form().Fields(), "sealed payload must carry no interactive form")

	// The signed value is rendered into the sealed payload.
	require.Contains(t, string(sealed), "Alice Harper")

	// The original payload is untouched.
	original, err := env.blobs.Get(context.Background(), reloaded.Items[0].BlobID)
	require.NoError(t, err)
	origDoc, err := formdoc.NewEngine().Load(original)
	require.NoError(t, err)
	require.Len(t, origDoc.Form().Fields(), 2)
}

func TestSealProducesCertificateAndAuditArtifacts(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel,
		recipientSpec{role: models.RecipientRoleSigner, email: "a@example.com"},
	)

	_, err := env.signing.CompleteRecipient(context.Background(), CompleteRecipientInput{
		Token: envelope.Recipients[0].Token,
	})
	require.NoError(t, err)

	reloaded := env.reloadEnvelope(envelope.ID)
	require.NotNil(t, reloaded.CertificateBlobID)
	require.NotNil(t, reloaded.AuditLogBlobID)

	certificate, err := env.blobs.Get(context.Background(), *reloaded.CertificateBlobID)
	require.NoError(t, err)
	require.Contains(t, string(certificate), "Signing Certificate")
	require.Contains(t, string(certificate), envelope.ID)
	require.Contains(t, string(certificate), "a@example.com")

	auditLog, err := env.blobs.Get(context.Background(), *reloaded.AuditLogBlobID)
	require.NoError(t, err)
	require.Contains(t, string(auditLog), models.AuditEventRecipientCompleted)
}

func TestResealRecoversMissingArtifacts(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeDocument, models.EnvelopeStatusPending, models.SigningOrderParallel,
		recipientSpec{role: models.RecipientRoleSigner, email: "a@example.com"},
	)

	_, err := env.signing.CompleteRecipient(context.Background(), CompleteRecipientInput{
		Token: envelope.Recipients[0].Token,
	})
	require.NoError(t, err)

	completedAt := env.reloadEnvelope(envelope.ID).CompletedAt
	require.NotNil(t, completedAt)

	// Simulate a partially failed seal: the certificate reference is gone.
	require.NoError(t, env.db.Model(&models.Envelope{}).
		Where("id = ?", envelope.ID).
		Update("certificate_blob_id", nil).Error)

	require.NoError(t, env.sealer.Seal(context.Background(), envelope.ID))

	reloaded := env.reloadEnvelope(envelope.ID)
	require.NotNil(t, reloaded.CertificateBlobID)
	require.Equal(t, models.EnvelopeStatusCompleted, reloaded.Status)

	// Recovery never moves the completion timestamp.
	require.NotNil(t, reloaded.CompletedAt)
	require.True(t, completedAt.Equal(*reloaded.CompletedAt))
}

func TestSealRejectsTemplates(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("owner@example.com")
	envelope := env.buildEnvelope(owner, models.EnvelopeTypeTemplate, models.EnvelopeStatusDraft, models.SigningOrderParallel,
		recipientSpec{role: models.RecipientRoleSigner, email: "a@example.com"},
	)

	err := env.sealer.Seal(context.Background(), envelope.ID)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}
