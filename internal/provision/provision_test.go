package provision

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritag/veritag/internal/domain"
)

type memRepo struct {
	records   map[int64]*domain.Product
	createErr error
	attachErr error
	deleteErr error
	deletes   int
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[int64]*domain.Product{}}
}

func (r *memRepo) Create(_ context.Context, p *domain.Product) error {
	if r.createErr != nil {
		return r.createErr
	}
	cp := *p
	r.records[p.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	p, okFound := r.records[id]
	if !okFound {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	r.deletes++
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.records, id)
	return nil
}

func (r *memRepo) AttachQrURL(_ context.Context, id int64, url string) error {
	if r.attachErr != nil {
		return r.attachErr
	}
	if p, okFound := r.records[id]; okFound {
		p.QrCodeURL = url
	}
	return nil
}

type stubEncoder struct {
	err   error
	calls []string
}

func (e *stubEncoder) EncodePNG(text string) ([]byte, error) {
	e.calls = append(e.calls, text)
	if e.err != nil {
		return nil, e.err
	}
	return []byte("png:" + text), nil
}

type stubBlobs struct {
	err   error
	puts  []string
	calls int
}

func (b *stubBlobs) Put(bucket, filename string, _ []byte, contentType string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	b.puts = append(b.puts, filename)
	return fmt.Sprintf("http://base/public/%s/%s", bucket, filename), nil
}

func newTestService() (*Service, *memRepo, *stubEncoder, *stubBlobs) {
	repo := newMemRepo()
	enc := &stubEncoder{}
	blobs := &stubBlobs{}
	return NewService(repo, enc, blobs, "http://base/", "product-qr"), repo, enc, blobs
}

func TestCreateProvisionsQr(t *testing.T) {
	svc, repo, enc, _ := newTestService()

	p, err := svc.Create(context.Background(), "LBL-001", "Premium Oil", "5 liter can")
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "LBL-001", p.LabelID)
	assert.Equal(t, "Premium Oil", p.Title)
	assert.Equal(t, "5 liter can", p.Description)

	// The QR payload is the canonical product link.
	require.Len(t, enc.calls, 1)
	assert.Equal(t, fmt.Sprintf("http://base/p/%d", p.ID), enc.calls[0])

	// The stored record carries the public URL of the uploaded image.
	stored := repo.records[p.ID]
	require.NotNil(t, stored)
	assert.Equal(t, p.QrCodeURL, stored.QrCodeURL)
	assert.True(t, strings.HasPrefix(p.QrCodeURL, "http://base/public/product-qr/qr-"))
	assert.True(t, strings.HasSuffix(p.QrCodeURL, ".png"))
}

func TestCreateRecordFailure(t *testing.T) {
	svc, repo, enc, _ := newTestService()
	repo.createErr = errors.New("db down")

	_, err := svc.Create(context.Background(), "LBL-001", "Premium Oil", "")
	require.Error(t, err)
	assert.Empty(t, enc.calls, "no QR work before the record exists")
}

func TestCreateEncodeFailureDeletesRecord(t *testing.T) {
	svc, repo, enc, blobs := newTestService()
	enc.err = errors.New("encode boom")

	_, err := svc.Create(context.Background(), "LBL-001", "Premium Oil", "")
	require.Error(t, err)
	assert.Empty(t, repo.records, "compensating delete removes the orphan record")
	assert.Equal(t, 1, repo.deletes)
	assert.Zero(t, blobs.calls)
}

func TestCreateUploadFailureDeletesRecord(t *testing.T) {
	svc, repo, _, blobs := newTestService()
	blobs.err = errors.New("upload boom")

	_, err := svc.Create(context.Background(), "LBL-001", "Premium Oil", "")
	require.Error(t, err)
	assert.Empty(t, repo.records)
	assert.Equal(t, 1, repo.deletes)
}

func TestCreateCompensationFailureStillReportsError(t *testing.T) {
	svc, repo, _, blobs := newTestService()
	blobs.err = errors.New("upload boom")
	repo.deleteErr = errors.New("delete also boom")

	_, err := svc.Create(context.Background(), "LBL-001", "Premium Oil", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload boom", "the original failure wins")
}

func TestCreateAttachFailureKeepsRecord(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.attachErr = errors.New("attach boom")

	_, err := svc.Create(context.Background(), "LBL-001", "Premium Oil", "")
	require.Error(t, err)

	// A record without a QR association is a valid state; no delete happens.
	assert.Len(t, repo.records, 1)
	assert.Zero(t, repo.deletes)
	for _, p := range repo.records {
		assert.Empty(t, p.QrCodeURL)
	}
}

func TestRegenerate(t *testing.T) {
	svc, repo, enc, _ := newTestService()

	p, err := svc.Create(context.Background(), "LBL-001", "Premium Oil", "desc")
	require.NoError(t, err)

	enc.calls = nil
	regen, err := svc.Regenerate(context.Background(), p.ID)
	require.NoError(t, err)

	// Identity fields never change.
	assert.Equal(t, p.ID, regen.ID)
	assert.Equal(t, "LBL-001", regen.LabelID)
	assert.Equal(t, "Premium Oil", regen.Title)
	assert.Equal(t, "desc", regen.Description)

	// Same canonical payload is re-encoded and re-attached.
	require.Len(t, enc.calls, 1)
	assert.Equal(t, fmt.Sprintf("http://base/p/%d", p.ID), enc.calls[0])
	assert.NotEmpty(t, regen.QrCodeURL)
	assert.Equal(t, regen.QrCodeURL, repo.records[p.ID].QrCodeURL)
}

func TestRegenerateMissingProduct(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Regenerate(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegenerateUploadFailureKeepsRecord(t *testing.T) {
	svc, repo, _, blobs := newTestService()

	p, err := svc.Create(context.Background(), "LBL-001", "Premium Oil", "")
	require.NoError(t, err)
	oldURL := repo.records[p.ID].QrCodeURL

	blobs.err = errors.New("upload boom")
	_, err = svc.Regenerate(context.Background(), p.ID)
	require.Error(t, err)

	// Regeneration failure never destroys the existing record or its URL.
	require.Len(t, repo.records, 1)
	assert.Equal(t, oldURL, repo.records[p.ID].QrCodeURL)
	assert.Zero(t, repo.deletes)
}
