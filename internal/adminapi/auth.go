package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/internal/webserver"
	"github.com/veritag/veritag/pkg/common"
)

// registerAuthRoutes registers operator login/logout/identity endpoints.
// Login is exempted from the auth middleware by the webserver skipper.
func registerAuthRoutes() {
	webserver.ApiPOST("/auth/login", login)
	webserver.ApiPOST("/auth/logout", logout)
	webserver.ApiGET("/auth/me", me)
}

func login(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	if username == "" || password == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Username and password are required", nil)
	}

	cfg := GetConfig(c)
	// Single allow-listed principal: only the configured admin may operate
	// the catalog, even with valid credentials for another account.
	if username != cfg.Web.AdminUsername {
		zap.L().Warn("login rejected for non-admin principal", zap.String("username", username))
		return fail(c, http.StatusForbidden, "FORBIDDEN", "Operator not allowed", nil)
	}

	var opr domain.Operator
	if err := GetDB(c).Where("username = ?", username).First(&opr).Error; err != nil {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid username or password", nil)
	}
	if opr.Status != common.ENABLED {
		return fail(c, http.StatusForbidden, "FORBIDDEN", "Operator disabled", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(opr.Password), []byte(password)); err != nil {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid username or password", nil)
	}

	token, err := webserver.CreateToken(cfg.Web.Secret, username)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue token", nil)
	}
	if err := webserver.SessionLogin(c, username); err != nil {
		zap.L().Warn("session save failed", zap.Error(err))
	}

	GetDB(c).Model(&domain.Operator{}).Where("id = ?", opr.ID).
		Update("last_login", time.Now())

	zap.L().Info("operator logged in", zap.String("username", username))
	return ok(c, map[string]interface{}{
		"token":    token,
		"username": username,
		"level":    opr.Level,
	})
}

func logout(c echo.Context) error {
	if err := webserver.SessionLogout(c); err != nil {
		zap.L().Warn("session clear failed", zap.Error(err))
	}
	return ok(c, map[string]interface{}{"message": "Logged out"})
}

func me(c echo.Context) error {
	username := webserver.CurrentUsername(c)
	if username == "" {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Not logged in", nil)
	}
	var opr domain.Operator
	if err := GetDB(c).Where("username = ?", username).First(&opr).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Operator not found", nil)
	}
	return ok(c, opr)
}
