package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/internal/pdf/formdoc"
	"github.com/documenso/documenso-sub011/pkg/crypto"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
)

// directFixture is a template with one signable placeholder behind an
// enabled direct link.
type directFixture struct {
	template *models.Envelope
	link     *models.DirectLink
}

func newDirectFixture(t *testing.T, env *testEnv, specs ...recipientSpec) directFixture {
	t.Helper()

	owner := env.createUser("owner@example.com")
	if len(specs) == 0 {
		specs = []recipientSpec{{
			role:  models.RecipientRoleSigner,
			email: "direct@placeholder.local",
			fields: []fieldSpec{
				{kind: models.FieldTypeText, required: true},
			},
		}}
	}
	template := env.buildEnvelope(owner, models.EnvelopeTypeTemplate, models.EnvelopeStatusDraft, models.SigningOrderParallel, specs...)

	link, err := env.envelopes.EnableDirectLink(context.Background(), template.ID, owner.ID, template.Recipients[0].ID)
	require.NoError(t, err)

	return directFixture{template: template, link: link}
}

func TestDirectTemplateMaterializesDocument(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	result, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "Visitor@Example.com",
		Name:  "Vera Visitor",
		SignedFieldValues: []DirectFieldValue{
			{FieldID: fx.template.Fields[0].ID, Value: "Vera Visitor"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.NotEqual(t, fx.template.Recipients[0].Token, result.Token)

	document := env.reloadEnvelope(result.DocumentID)
	require.Equal(t, models.EnvelopeTypeDocument, document.Type)
	require.Equal(t, fx.template.ID, *document.SourceTemplateID)

	// The visitor replaced the placeholder identity and finished signing, so
	// the single-signer document sealed immediately.
	visitor := env.reloadRecipient(result.RecipientID)
	require.Equal(t, "visitor@example.com", visitor.Email)
	require.Equal(t, "Vera Visitor", visitor.Name)
	require.Equal(t, models.SigningStatusSigned, visitor.SigningStatus)
	require.Equal(t, models.EnvelopeStatusCompleted, document.Status)

	// The template itself is untouched.
	reloaded := env.reloadEnvelope(fx.template.ID)
	require.Equal(t, models.EnvelopeTypeTemplate, reloaded.Type)
	require.Equal(t, models.EnvelopeStatusDraft, reloaded.Status)
	require.Equal(t, "direct@placeholder.local", reloaded.Recipients[0].Email)
	require.False(t, reloaded.Fields[0].Inserted)

	require.EqualValues(t, 1, env.auditCount(document.ID, models.AuditEventDocumentFromDirect))
}

func TestDirectTemplateWaitsForOtherSigners(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env,
		recipientSpec{role: models.RecipientRoleSigner, email: "direct@placeholder.local"},
		recipientSpec{role: models.RecipientRoleSigner, email: "counter@example.com"},
	)

	result, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "visitor@example.com",
	})
	require.NoError(t, err)

	document := env.reloadEnvelope(result.DocumentID)
	require.Equal(t, models.EnvelopeStatusPending, document.Status)

	// The countersigner can finish via their fresh token.
	var counter *models.Recipient
	for i := range document.Recipients {
		if document.Recipients[i].Email == "counter@example.com" {
			counter = &document.Recipients[i]
		}
	}
	require.NotNil(t, counter)

	_, err = env.signing.CompleteRecipient(context.Background(), CompleteRecipientInput{Token: counter.Token})
	require.NoError(t, err)
	require.Equal(t, models.EnvelopeStatusCompleted, env.reloadEnvelope(result.DocumentID).Status)
}

func TestDirectTemplateDisabledLinkIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	require.NoError(t, env.envelopes.DisableDirectLink(context.Background(), fx.template.ID, fx.template.UserID))

	_, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "visitor@example.com",
		SignedFieldValues: []DirectFieldValue{
			{FieldID: fx.template.Fields[0].ID, Value: "v"},
		},
	})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDirectTemplateStaleLayoutConflicts(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	stale := fx.template.UpdatedAt.Add(-time.Hour)

	_, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token:             fx.link.Token,
		Email:             "visitor@example.com",
		TemplateUpdatedAt: &stale,
		SignedFieldValues: []DirectFieldValue{
			{FieldID: fx.template.Fields[0].ID, Value: "v"},
		},
	})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDirectTemplateMissingRequiredValueFailsBeforeWrites(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	_, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "visitor@example.com",
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)

	// Nothing materialized.
	var count int64
	require.NoError(t, env.db.Model(&models.Envelope{}).
		Where("type = ?", models.EnvelopeTypeDocument).
		Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestDirectTemplateFormDefaultsFillMissingValues(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	defaults, err := json.Marshal(map[string]string{fx.template.Fields[0].ID: "prefilled"})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.Envelope{}).
		Where("id = ?", fx.template.ID).
		Update("form_values", defaults).Error)

	result, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "visitor@example.com",
	})
	require.NoError(t, err)

	document := env.reloadEnvelope(result.DocumentID)
	require.Len(t, document.Fields, 1)
	require.True(t, document.Fields[0].Inserted)
	require.Equal(t, "prefilled", document.Fields[0].CustomText)
}

func TestDirectTemplateCopiesAndFlattensPayload(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	// The template payload carries an interactive form with a stored default.
	formBlobID, err := env.blobs.Put(context.Background(), env.formPayload("customer"))
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.EnvelopeItem{}).
		Where("envelope_id = ?", fx.template.ID).
		Update("blob_id", formBlobID).Error)

	defaults, err := json.Marshal(map[string]string{"customer": "Acme Corp"})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.Envelope{}).
		Where("id = ?", fx.template.ID).
		Update("form_values", defaults).Error)

	result, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "visitor@example.com",
		SignedFieldValues: []DirectFieldValue{
			{FieldID: fx.template.Fields[0].ID, Value: "Vera Visitor"},
		},
	})
	require.NoError(t, err)

	// The document owns a fresh blob; it never shares storage with the
	// template.
	document := env.reloadEnvelope(result.DocumentID)
	require.NotEqual(t, formBlobID, document.Items[0].BlobID)

	// The document payload is flattened with the default baked in as static
	// content.
	payload, err := env.blobs.Get(context.Background(), document.Items[0].BlobID)
	require.NoError(t, err)
	doc, err := formdoc.NewEngine().Load(payload)
	require.NoError(t, err)
	require.Empty(t, doc.Form().Fields(), "document payload must carry no interactive form")
	require.Contains(t, string(payload), "Acme Corp")

	// The template payload keeps its editable form, value untouched.
	original, err := env.blobs.Get(context.Background(), formBlobID)
	require.NoError(t, err)
	templateDoc, err := formdoc.NewEngine().Load(original)
	require.NoError(t, err)
	require.Len(t, templateDoc.Form().Fields(), 1)
	require.Empty(t, templateDoc.Form().Fields()[0].Value)
}

func TestDirectTemplateEmptyCheckboxSelectionLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t)
	meta, err := json.Marshal(map[string]any{
		"options": []map[string]any{{"id": "1", "value": "I agree"}},
	})
	require.NoError(t, err)

	fx := newDirectFixture(t, env, recipientSpec{
		role:  models.RecipientRoleSigner,
		email: "direct@placeholder.local",
		fields: []fieldSpec{
			{kind: models.FieldTypeCheckbox, required: true, meta: meta},
		},
	})

	// An empty selection parses as valid JSON but satisfies no required
	// option, so the submission fails before anything materializes.
	_, err = env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "visitor@example.com",
		SignedFieldValues: []DirectFieldValue{
			{FieldID: fx.template.Fields[0].ID, Value: "[]"},
		},
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)

	var count int64
	require.NoError(t, env.db.Model(&models.Envelope{}).
		Where("type = ?", models.EnvelopeTypeDocument).
		Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestDirectTemplateWrongActionAuthLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	hash, err := crypto.HashPassword("open sesame")
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.Envelope{}).
		Where("id = ?", fx.template.ID).
		Updates(map[string]any{
			"action_auth":        models.AuthMethodPassword,
			"action_auth_secret": hash,
		}).Error)

	_, err = env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "visitor@example.com",
		Auth:  ActionAuthInput{Password: "wrong"},
		SignedFieldValues: []DirectFieldValue{
			{FieldID: fx.template.Fields[0].ID, Value: "v"},
		},
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, env.db.Model(&models.Envelope{}).
		Where("type = ?", models.EnvelopeTypeDocument).
		Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestDirectTemplateStampsExternalID(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	result, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token:      fx.link.Token,
		Email:      "visitor@example.com",
		ExternalID: "crm-4711",
		SignedFieldValues: []DirectFieldValue{
			{FieldID: fx.template.Fields[0].ID, Value: "v"},
		},
	})
	require.NoError(t, err)

	document := env.reloadEnvelope(result.DocumentID)
	require.NotNil(t, document.ExternalID)
	require.Equal(t, "crm-4711", *document.ExternalID)
}

func TestDirectTemplateRejectsUnknownFieldValues(t *testing.T) {
	env := newTestEnv(t)
	fx := newDirectFixture(t, env)

	_, err := env.direct.CreateFromDirectTemplate(context.Background(), CreateFromDirectTemplateInput{
		Token: fx.link.Token,
		Email: "visitor@example.com",
		SignedFieldValues: []DirectFieldValue{
			{FieldID: fx.template.Fields[0].ID, Value: "v"},
			{FieldID: "no-such-field", Value: "x"},
		},
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
}
