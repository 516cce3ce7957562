package app

import (
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/pkg/common"
)

// SettingsManager reads and writes runtime-tunable values in the settings
// table. Values are stored as strings and cast on access.
type SettingsManager struct {
	db *gorm.DB
}

func NewSettingsManager(db *gorm.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

func (m *SettingsManager) GetString(category, key string) string {
	var s domain.Setting
	err := m.db.Where("type = ? and name = ?", category, key).First(&s).Error
	if err != nil {
		return ""
	}
	return s.Value
}

func (m *SettingsManager) GetInt64(category, key string) int64 {
	return cast.ToInt64(m.GetString(category, key))
}

func (m *SettingsManager) GetBool(category, key string) bool {
	return cast.ToBool(m.GetString(category, key))
}

// Save upserts the given key/value pairs within a category.
func (m *SettingsManager) Save(category string, settings map[string]interface{}) error {
	for key, value := range settings {
		strval := cast.ToString(value)
		var s domain.Setting
		err := m.db.Where("type = ? and name = ?", category, key).First(&s).Error
		if err == gorm.ErrRecordNotFound {
			s = domain.Setting{
				ID:    common.NextID(),
				Type:  category,
				Name:  key,
				Value: strval,
			}
			if err := m.db.Create(&s).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := m.db.Model(&domain.Setting{}).Where("id = ?", s.ID).
			Updates(map[string]interface{}{"value": strval, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
	}
	zap.L().Info("settings saved", zap.String("category", category), zap.Int("count", len(settings)))
	return nil
}
