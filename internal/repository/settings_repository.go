package repository

import (
	"errors"

	"kb-admin-go/internal/model"

	"gorm.io/gorm"
)

const settingsRowID = 1

// SettingsRepository 读写系统设置。
type SettingsRepository interface {
	Get() (*model.SystemSettings, error)
	Save(settings *model.SystemSettings) error
}

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建一个新的 SettingsRepository 实例。
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// Get 返回系统设置，尚未保存过时返回空设置。
func (r *settingsRepository) Get() (*model.SystemSettings, error) {
	var settings model.SystemSettings
	err := r.db.First(&settings, settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.SystemSettings{ID: settingsRowID, Data: map[string]interface{}{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) Save(settings *model.SystemSettings) error {
	settings.ID = settingsRowID
	return r.db.Save(settings).Error
}
