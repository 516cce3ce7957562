package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/internal/provision"
	"github.com/veritag/veritag/internal/webserver"
)

var provisioner *provision.Service

// InitRouter wires the admin API routes. The provisioning service owns QR
// generation and upload for create/regenerate.
func InitRouter(prov *provision.Service) {
	provisioner = prov
	registerProductRoutes()
	registerAuthRoutes()
}

// registerProductRoutes registers the product catalog endpoints
func registerProductRoutes() {
	webserver.ApiGET("/products", listProducts)
	webserver.ApiGET("/products/export", exportProducts)
	webserver.ApiGET("/products/:id", getProduct)
	webserver.ApiPOST("/products", createProduct)
	webserver.ApiPUT("/products/:id", updateProduct)
	webserver.ApiDELETE("/products/:id", deleteProduct)
	webserver.ApiPOST("/products/:id/regenerate-qr", regenerateProductQr)
}

func listProducts(c echo.Context) error {
	rows := make([]domain.Product, 0)
	db := GetDB(c).Model(&domain.Product{})

	// Optional substring filter on labelId or title.
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		if strings.EqualFold(db.Name(), "postgres") { //nolint:staticcheck
			db = db.Where("label_id ILIKE ? OR title ILIKE ?", "%"+q+"%", "%"+q+"%")
		} else {
			db = db.Where("LOWER(label_id) LIKE ? OR LOWER(title) LIKE ?",
				"%"+strings.ToLower(q)+"%", "%"+strings.ToLower(q)+"%")
		}
	}

	if err := db.Order("created_at DESC").Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	return ok(c, rows)
}

func getProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}
	return ok(c, p)
}

func createProduct(c echo.Context) error {
	labelID := strings.TrimSpace(c.FormValue("labelId"))
	title := strings.TrimSpace(c.FormValue("title"))
	description := c.FormValue("description")

	if labelID == "" || title == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Label ID and Title are required", nil)
	}

	p, err := provisioner.Create(c.Request().Context(), labelID, title, description)
	if err != nil {
		zap.L().Error("product provisioning failed", zap.String("label_id", labelID), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "PROVISION_FAILED", "Failed to create product", nil)
	}

	auditLog(c, "product.create", fmt.Sprintf("created product %d (%s)", p.ID, p.LabelID))
	return ok(c, p)
}

func updateProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}

	labelID := strings.TrimSpace(c.FormValue("labelId"))
	title := strings.TrimSpace(c.FormValue("title"))
	if labelID == "" || title == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Label ID and Title are required", nil)
	}

	p.LabelID = labelID
	p.Title = title
	p.Description = c.FormValue("description")
	p.UpdatedAt = time.Now()

	if err := GetDB(c).Save(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update product", err.Error())
	}

	auditLog(c, "product.update", fmt.Sprintf("updated product %d (%s)", p.ID, p.LabelID))
	return ok(c, p)
}

func deleteProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p domain.Product
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}

	// The record goes away now; the superseded QR blob is reclaimed by the
	// sweep job.
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Product{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete product", err.Error())
	}

	auditLog(c, "product.delete", fmt.Sprintf("deleted product %d (%s)", p.ID, p.LabelID))
	zap.L().Info("product deleted", zap.Int64("id", id))
	return ok(c, map[string]interface{}{"message": "Product deleted"})
}

func regenerateProductQr(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}

	p, err := provisioner.Regenerate(c.Request().Context(), id)
	if errors.Is(err, provision.ErrNotFound) {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
	}
	if err != nil {
		zap.L().Error("qr regeneration failed", zap.Int64("id", id), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "PROVISION_FAILED", "Failed to regenerate QR code", nil)
	}

	auditLog(c, "product.regenerate-qr", fmt.Sprintf("regenerated qr for product %d", p.ID))
	return ok(c, p)
}

type productCsvRow struct {
	ID          int64  `csv:"id"`
	LabelID     string `csv:"label_id"`
	Title       string `csv:"title"`
	Description string `csv:"description"`
	QrCodeURL   string `csv:"qr_code_url"`
	CreatedAt   string `csv:"created_at"`
}

// exportProducts downloads the whole catalog as CSV.
func exportProducts(c echo.Context) error {
	var rows []domain.Product
	if err := GetDB(c).Order("created_at DESC").Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	out := make([]productCsvRow, 0, len(rows))
	for _, p := range rows {
		out = append(out, productCsvRow{
			ID:          p.ID,
			LabelID:     p.LabelID,
			Title:       p.Title,
			Description: p.Description,
			QrCodeURL:   p.QrCodeURL,
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		})
	}

	data, err := gocsv.MarshalString(&out)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to export products", err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="products.csv"`)
	return c.Blob(http.StatusOK, "text/csv", []byte(data))
}
