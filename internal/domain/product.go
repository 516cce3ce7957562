package domain

import "time"

// Product is a catalog entry with an authenticity QR code. QrCodeURL is
// empty until provisioning has uploaded the image; it never points at a
// missing blob.
type Product struct {
	ID          int64     `json:"id,string" form:"id"`
	LabelID     string    `gorm:"index;size:255" json:"labelId" form:"labelId"`
	Title       string    `gorm:"size:255" json:"title" form:"title"`
	Description string    `json:"description" form:"description"`
	QrCodeURL   string    `gorm:"size:1024" json:"qrCodeUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName Specify table name
func (Product) TableName() string {
	return "products"
}
