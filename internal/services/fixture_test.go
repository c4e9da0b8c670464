package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/database/testutil"
	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/internal/pdf/formdoc"
	"github.com/documenso/documenso-sub011/internal/storage"
	"github.com/documenso/documenso-sub011/pkg/crypto"
	"github.com/documenso/documenso-sub011/pkg/mail"
)

// captureMailer records outbound messages instead of delivering them.
type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// testEnv wires the full service graph against an isolated in-memory
// database with a frozen clock.
type testEnv struct {
	t *testing.T

	db     *gorm.DB
	blobs  *storage.GormBlobStore
	mailer *captureMailer
	clock  time.Time

	audit     *AuditService
	sealer    *SealService
	signing   *SigningService
	envelopes *EnvelopeService
	direct    *DirectTemplateService
	gateway   *TokenGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	blobs, err := storage.NewGormBlobStore(db)
	require.NoError(t, err)

	audit, err := NewAuditService(db)
	require.NoError(t, err)

	mailer := &captureMailer{}
	clock := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time { return clock }

	engine := formdoc.NewEngine()

	sealer, err := NewSealService(db, blobs, engine, audit, mailer,
		WithSealClock(tick), WithSealBaseURL("https://sign.test"))
	require.NoError(t, err)

	signing, err := NewSigningService(db, audit, sealer, mailer,
		WithSigningClock(tick), WithSigningBaseURL("https://sign.test"))
	require.NoError(t, err)

	envelopes, err := NewEnvelopeService(db, blobs, engine, audit, mailer,
		WithEnvelopeClock(tick), WithEnvelopeBaseURL("https://sign.test"))
	require.NoError(t, err)

	direct, err := NewDirectTemplateService(db, blobs, engine, signing, audit)
	require.NoError(t, err)

	gateway, err := NewTokenGateway(db)
	require.NoError(t, err)

	return &testEnv{
		t:         t,
		db:        db,
		blobs:     blobs,
		mailer:    mailer,
		clock:     clock,
		audit:     audit,
		sealer:    sealer,
		signing:   signing,
		envelopes: envelopes,
		direct:    direct,
		gateway:   gateway,
	}
}

func (e *testEnv) payload() []byte {
	e.t.Helper()
	data, err := formdoc.New(1).Save()
	require.NoError(e.t, err)
	return data
}

func (e *testEnv) formPayload(names ...string) []byte {
	e.t.Helper()
	data, err := formdoc.NewWithForm(1, names...).Save()
	require.NoError(e.t, err)
	return data
}

func (e *testEnv) createUser(email string) *models.User {
	e.t.Helper()
	user := &models.User{Email: email, Name: "Test Owner", IsActive: true}
	require.NoError(e.t, e.db.Create(user).Error)
	return user
}

// recipientSpec is shorthand for building envelope fixtures.
type recipientSpec struct {
	role   models.RecipientRole
	email  string
	order  *int
	fields []fieldSpec
}

type fieldSpec struct {
	kind     models.FieldType
	required bool
	meta     []byte
}

// buildEnvelope persists an envelope with one payload item and the given
// recipients directly, bypassing the services under test.
func (e *testEnv) buildEnvelope(owner *models.User, envType models.EnvelopeType, status models.EnvelopeStatus, mode models.SigningOrderMode, specs ...recipientSpec) *models.Envelope {
	e.t.Helper()

	blobID, err := e.blobs.Put(context.Background(), e.payload())
	require.NoError(e.t, err)

	envelope := &models.Envelope{
		Type:             envType,
		Status:           status,
		Title:            "Test Agreement",
		UserID:           owner.ID,
		SigningOrderMode: mode,
		AccessAuth:       models.AuthMethodNone,
		ActionAuth:       models.AuthMethodNone,
	}
	require.NoError(e.t, e.db.Create(envelope).Error)

	item := &models.EnvelopeItem{EnvelopeID: envelope.ID, Order: 0, Title: "Payload", BlobID: blobID}
	require.NoError(e.t, e.db.Create(item).Error)
	envelope.Items = []models.EnvelopeItem{*item}

	for _, spec := range specs {
		token, err := crypto.GenerateSigningToken()
		require.NoError(e.t, err)

		recipient := &models.Recipient{
			EnvelopeID:    envelope.ID,
			Role:          spec.role,
			Email:         spec.email,
			Name:          "Recipient " + spec.email,
			Token:         token,
			SigningOrder:  spec.order,
			SigningStatus: models.SigningStatusNotSigned,
			SendStatus:    models.SendStatusNotSent,
		}
		require.NoError(e.t, e.db.Create(recipient).Error)

		for i, f := range spec.fields {
			field := &models.Field{
				EnvelopeID:  envelope.ID,
				RecipientID: recipient.ID,
				ItemID:      item.ID,
				Type:        f.kind,
				Page:        1,
				PositionX:   float64(40 * (i + 1)),
				PositionY:   float64(60 * (i + 1)),
				Width:       120,
				Height:      24,
				Required:    f.required,
				FieldMeta:   f.meta,
			}
			require.NoError(e.t, e.db.Create(field).Error)
			envelope.Fields = append(envelope.Fields, *field)
		}

		envelope.Recipients = append(envelope.Recipients, *recipient)
	}

	return envelope
}

func (e *testEnv) reloadRecipient(id string) *models.Recipient {
	e.t.Helper()
	var recipient models.Recipient
	require.NoError(e.t, e.db.First(&recipient, "id = ?", id).Error)
	return &recipient
}

func (e *testEnv) reloadEnvelope(id string) *models.Envelope {
	e.t.Helper()
	var envelope models.Envelope
	require.NoError(e.t, e.db.
		Preload("Items").Preload("Recipients").Preload("Fields").Preload("Fields.Signature").
		First(&envelope, "id = ?", id).Error)
	return &envelope
}

func (e *testEnv) reloadField(id string) *models.Field {
	e.t.Helper()
	var field models.Field
	require.NoError(e.t, e.db.Preload("Signature").First(&field, "id = ?", id).Error)
	return &field
}

func intPtr(v int) *int { return &v }
