package adminapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veritag/veritag/config"
	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/internal/webserver"
	"github.com/veritag/veritag/pkg/common"
)

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return c.Get(webserver.ContextKeyDB).(*gorm.DB)
}

// GetConfig returns the application configuration.
func GetConfig(c echo.Context) *config.AppConfig {
	return c.Get(webserver.ContextKeyConfig).(*config.AppConfig)
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(200, data)
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	body := map[string]interface{}{
		"error": message,
		"code":  code,
	}
	if detail != nil {
		body["detail"] = detail
	}
	return c.JSON(status, body)
}

// auditLog records an admin mutation; failures only warn, the action
// itself already succeeded.
func auditLog(c echo.Context, action, desc string) {
	entry := domain.OperatorLog{
		ID:        common.NextID(),
		OprName:   webserver.CurrentUsername(c),
		OprIp:     c.RealIP(),
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	}
	if err := GetDB(c).Create(&entry).Error; err != nil {
		zap.L().Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
