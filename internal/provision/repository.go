package provision

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/veritag/veritag/internal/domain"
)

// GormProductRepository adapts a gorm handle to the workflow's repository
// interface.
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *GormProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormProductRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Product{}).Error
}

func (r *GormProductRepository) AttachQrURL(ctx context.Context, id int64, url string) error {
	return r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("id = ?", id).Update("qr_code_url", url).Error
}
