// Package publicapi serves the unauthenticated surface: the authenticity
// confirmation page behind every QR code and the public blob URLs.
package publicapi

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veritag/veritag/internal/blobstore"
	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/internal/webserver"
	"github.com/veritag/veritag/pkg/metrics"
)

var blobs *blobstore.Store

// InitRouter wires the public routes.
func InitRouter(store *blobstore.Store) {
	blobs = store
	webserver.PubGET("/healthz", healthz)
	webserver.PubGET("/p/:id", verifyProduct)
	webserver.PubGET("/public/:bucket/:filename", serveBlob)
}

func healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

var verifyTmpl = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>{{.Title}} — VeriTag</title></head>
<body>
<main style="max-width:28rem;margin:2rem auto;font-family:sans-serif;text-align:center">
<h1>{{.Title}}</h1>
<p>Label ID: <strong>{{.LabelID}}</strong></p>
{{if .Description}}<p style="white-space:pre-line">{{.Description}}</p>{{end}}
<p style="color:green;font-weight:bold">THIS IS A GENUINE PRODUCT</p>
</main>
</body>
</html>
`))

var notFoundTmpl = template.Must(template.New("notfound").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Not found — VeriTag</title></head>
<body>
<main style="max-width:28rem;margin:2rem auto;font-family:sans-serif;text-align:center">
<p style="color:#b00">Error: Product not found</p>
</main>
</body>
</html>
`))

// verifyProduct renders the authenticity confirmation page a scanned QR
// code points at.
func verifyProduct(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return renderNotFound(c)
	}

	db := c.Get(webserver.ContextKeyDB).(*gorm.DB)
	var p domain.Product
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		return renderNotFound(c)
	}

	metrics.IncrCounter("verify_page_view")
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return verifyTmpl.Execute(c.Response(), p)
}

func renderNotFound(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusNotFound)
	return notFoundTmpl.Execute(c.Response(), nil)
}

// serveBlob streams a stored image with its content type.
func serveBlob(c echo.Context) error {
	bucket := c.Param("bucket")
	filename := c.Param("filename")

	data, contentType, err := blobs.Get(bucket, filename)
	if errors.Is(err, blobstore.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	if err != nil {
		zap.L().Error("blob read failed",
			zap.String("bucket", bucket), zap.String("filename", filename), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "storage error"})
	}

	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, data)
}
