package app

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/pkg/common"
)

const defaultAdminPassword = "veritag"

func (a *Application) checkSuper() {
	username := a.appConfig.Web.AdminUsername
	password := a.appConfig.Web.AdminPassword
	if password == "" {
		password = defaultAdminPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Error("failed to hash admin password", zap.Error(err))
		return
	}

	var operator domain.Operator
	err = a.gormDB.Where("username = ?", username).First(&operator).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := a.gormDB.Create(&domain.Operator{
			ID:        common.NextID(),
			Realname:  "administrator",
			Email:     "N/A",
			Username:  username,
			Password:  string(hashed),
			Level:     "super",
			Status:    common.ENABLED,
			Remark:    "super",
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default super admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default super admin account", zap.String("username", username))
		}
		return
	case err != nil:
		zap.L().Error("failed to query super admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(operator.Password) == ""
	resetLevel := !strings.EqualFold(operator.Level, "super")
	resetStatus := !strings.EqualFold(operator.Status, common.ENABLED)

	if !resetPassword && !resetLevel && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		updates["password"] = string(hashed)
	}
	if resetLevel {
		updates["level"] = "super"
	}
	if resetStatus {
		updates["status"] = common.ENABLED
	}

	if err := a.gormDB.Model(&domain.Operator{}).Where("id = ?", operator.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair super admin account", zap.Error(err))
		return
	}

	zap.L().Warn("repaired default super admin account",
		zap.String("username", username),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("levelReset", resetLevel),
		zap.Bool("statusEnabled", resetStatus))
}

var defaultSettings = []domain.Setting{
	{Type: "system", Name: "QrSweepCron", Value: "@daily", Remark: "orphaned QR image sweep schedule"},
	{Type: "system", Name: "QrSweepMinAgeMinutes", Value: "60", Remark: "minimum blob age before sweep eligibility"},
	{Type: "system", Name: "OperatorLogDays", Value: "365", Remark: "audit log retention in days"},
}

func (a *Application) checkSettings() {
	for _, s := range defaultSettings {
		var count int64
		a.gormDB.Model(&domain.Setting{}).
			Where("type = ? and name = ?", s.Type, s.Name).Count(&count)
		if count > 0 {
			continue
		}
		s.ID = common.NextID()
		if err := a.gormDB.Create(&s).Error; err != nil {
			zap.L().Error("failed to seed setting",
				zap.String("name", s.Name), zap.Error(err))
		}
	}
}
