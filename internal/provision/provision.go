// Package provision orchestrates product creation: insert the record,
// encode its canonical link as a QR image, upload the image, then attach
// the public URL. A product never references a missing image: when encode
// or upload fails after the insert, the orphan record is deleted again.
package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/veritag/veritag/internal/blobstore"
	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/pkg/common"
)

// ErrNotFound reports a missing product record.
var ErrNotFound = errors.New("provision: product not found")

// ProductRepository is the record-store surface the workflow needs.
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	Delete(ctx context.Context, id int64) error
	AttachQrURL(ctx context.Context, id int64, url string) error
}

// Encoder produces the QR image bytes.
type Encoder interface {
	EncodePNG(text string) ([]byte, error)
}

// BlobStore uploads image bytes and returns a public URL.
type BlobStore interface {
	Put(bucket, filename string, data []byte, contentType string) (string, error)
}

type Service struct {
	repo    ProductRepository
	encoder Encoder
	blobs   BlobStore
	baseURL string
	bucket  string
}

func NewService(repo ProductRepository, encoder Encoder, blobs BlobStore, baseURL, bucket string) *Service {
	return &Service{
		repo:    repo,
		encoder: encoder,
		blobs:   blobs,
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
	}
}

// ProductURL is the canonical link encoded into a product's QR code.
func (s *Service) ProductURL(id int64) string {
	return fmt.Sprintf("%s/p/%d", s.baseURL, id)
}

// Create runs the full provisioning sequence and returns the provisioned
// product. On encode or upload failure the created record is deleted
// before the error is returned. An attach failure leaves the record
// without a QR association, which is a valid terminal state.
func (s *Service) Create(ctx context.Context, labelID, title, description string) (*domain.Product, error) {
	p := &domain.Product{
		ID:          common.NextID(),
		LabelID:     labelID,
		Title:       title,
		Description: description,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "provision: create record")
	}

	qrURL, err := s.generateAndUpload(p.ID, labelID, title)
	if err != nil {
		if derr := s.repo.Delete(ctx, p.ID); derr != nil {
			zap.L().Error("compensation delete failed, orphan record remains",
				zap.Int64("product_id", p.ID), zap.Error(derr))
		}
		return nil, err
	}

	if err := s.repo.AttachQrURL(ctx, p.ID, qrURL); err != nil {
		return nil, errors.Wrap(err, "provision: attach qr url")
	}
	p.QrCodeURL = qrURL

	zap.L().Info("product provisioned",
		zap.Int64("product_id", p.ID), zap.String("label_id", labelID))
	return p, nil
}

// Regenerate reruns encode, upload and attach against an existing record,
// overwriting its QR URL. Id, labelId, title and description are never
// touched; the superseded blob is left for the sweep job.
func (s *Service) Regenerate(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	qrURL, err := s.generateAndUpload(p.ID, p.LabelID, p.Title)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AttachQrURL(ctx, p.ID, qrURL); err != nil {
		return nil, errors.Wrap(err, "provision: attach qr url")
	}
	p.QrCodeURL = qrURL

	zap.L().Info("product qr regenerated", zap.Int64("product_id", p.ID))
	return p, nil
}

func (s *Service) generateAndUpload(id int64, labelID, title string) (string, error) {
	data, err := s.encoder.EncodePNG(s.ProductURL(id))
	if err != nil {
		return "", errors.Wrap(err, "provision: generate qr code")
	}

	filename := blobstore.MakeFilename("qr", labelID+"-"+title, "png")
	qrURL, err := s.blobs.Put(s.bucket, filename, data, "image/png")
	if err != nil {
		return "", errors.Wrap(err, "provision: upload qr image")
	}
	return qrURL, nil
}
