package adminapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/veritag/veritag/config"
	"github.com/veritag/veritag/internal/blobstore"
	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/internal/provision"
	"github.com/veritag/veritag/internal/publicapi"
	"github.com/veritag/veritag/internal/qrgen"
	"github.com/veritag/veritag/internal/webserver"
	"github.com/veritag/veritag/pkg/common"
)

const (
	testAdminUser = "admin"
	testAdminPass = "hunter2"
)

type testEnv struct {
	e     *echo.Echo
	db    *gorm.DB
	token string
}

// newTestEnv stands up the full HTTP surface against sqlite and an
// isolated blob store, then logs the admin in.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := *config.DefaultAppConfig
	cfg.Web.Secret = "test-secret"
	cfg.Web.AdminUsername = testAdminUser
	cfg.Web.BaseURL = "http://127.0.0.1:1816"

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "veritag.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(domain.Tables...))

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPass), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Create(&domain.Operator{
		ID:        common.NextID(),
		Username:  testAdminUser,
		Password:  string(hash),
		Level:     "super",
		Status:    common.ENABLED,
		LastLogin: time.Now(),
	}).Error)

	store, err := blobstore.Open(filepath.Join(t.TempDir(), "blobs.db"), cfg.Web.BaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	prov := provision.NewService(
		provision.NewGormProductRepository(db),
		qrgen.NewEncoder(),
		store,
		cfg.Web.BaseURL,
		cfg.Storage.QrBucket,
	)

	ws := webserver.Init(&cfg, db)
	InitRouter(prov)
	publicapi.InitRouter(store)

	env := &testEnv{e: ws.Echo(), db: db}

	rec := env.request(http.MethodPost, "/api/auth/login", "", url.Values{
		"username": {testAdminUser}, "password": {testAdminPass},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	require.NotEmpty(t, loginResp.Token)
	env.token = loginResp.Token
	return env
}

func (env *testEnv) request(method, target, token string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

type productResp struct {
	ID          string `json:"id"`
	LabelID     string `json:"labelId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	QrCodeURL   string `json:"qrCodeUrl"`
}

func (env *testEnv) createProduct(t *testing.T, labelID, title, description string) productResp {
	t.Helper()
	rec := env.request(http.MethodPost, "/api/products", env.token, url.Values{
		"labelId": {labelID}, "title": {title}, "description": {description},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p productResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestProductLifecycle(t *testing.T) {
	env := newTestEnv(t)

	p := env.createProduct(t, "LBL-001", "Premium Oil", "5 liter can")
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "LBL-001", p.LabelID)
	assert.Contains(t, p.QrCodeURL, "/public/product-qr/qr-")

	// The QR image behind the URL is actually served.
	qrPath := strings.TrimPrefix(p.QrCodeURL, "http://127.0.0.1:1816")
	rec := env.request(http.MethodGet, qrPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.NotEmpty(t, rec.Body.Bytes())

	// The verification page behind the encoded link resolves.
	rec = env.request(http.MethodGet, "/p/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "THIS IS A GENUINE PRODUCT")
	assert.Contains(t, rec.Body.String(), "LBL-001")

	rec = env.request(http.MethodGet, "/api/products/"+p.ID, env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Update touches label, title and description only.
	rec = env.request(http.MethodPut, "/api/products/"+p.ID, env.token, url.Values{
		"labelId": {"LBL-002"}, "title": {"Premium Oil v2"}, "description": {""},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated productResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, "LBL-002", updated.LabelID)
	assert.Equal(t, "Premium Oil v2", updated.Title)
	assert.Equal(t, p.QrCodeURL, updated.QrCodeURL, "update never touches the QR association")

	rec = env.request(http.MethodDelete, "/api/products/"+p.ID, env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Product deleted")

	rec = env.request(http.MethodGet, "/api/products/"+p.ID, env.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(http.MethodGet, "/p/"+p.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(http.MethodGet, "/api/products", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestCreateProductValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodPost, "/api/products", env.token, url.Values{
		"title": {"No label"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(http.MethodPost, "/api/products", env.token, url.Values{
		"labelId": {"LBL-001"}, "title": {"   "},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProductsFilter(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, "LBL-001", "Premium Oil", "")
	env.createProduct(t, "LBL-002", "Brake Fluid", "")

	rec := env.request(http.MethodGet, "/api/products?q=premium", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []productResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Premium Oil", rows[0].Title)

	rec = env.request(http.MethodGet, "/api/products?q=LBL-", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 2)
}

func TestRegenerateQr(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "LBL-001", "Premium Oil", "")

	// Filenames are millisecond-stamped; step past the creation instant so
	// the regenerated URL is observably new.
	time.Sleep(5 * time.Millisecond)

	rec := env.request(http.MethodPost, "/api/products/"+p.ID+"/regenerate-qr", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var regen productResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regen))

	assert.Equal(t, p.ID, regen.ID)
	assert.Equal(t, p.LabelID, regen.LabelID)
	assert.Equal(t, p.Title, regen.Title)
	assert.NotEqual(t, p.QrCodeURL, regen.QrCodeURL)

	rec = env.request(http.MethodPost, "/api/products/99999/regenerate-qr", env.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductInvalidID(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/products/not-a-number",
		"/api/products/not-a-number/regenerate-qr",
	} {
		method := http.MethodGet
		if strings.HasSuffix(target, "regenerate-qr") {
			method = http.MethodPost
		}
		rec := env.request(method, target, env.token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestExportProducts(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, "LBL-001", "Premium Oil", "")

	rec := env.request(http.MethodGet, "/api/products/export", env.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "products.csv")
	assert.Contains(t, rec.Body.String(), "label_id")
	assert.Contains(t, rec.Body.String(), "LBL-001")
}

func TestApiRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodGet, "/api/products", "", nil)
	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest, "unauthenticated access must fail")

	rec = env.request(http.MethodGet, "/api/products", "not-a-valid-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Public routes stay open.
	rec = env.request(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
