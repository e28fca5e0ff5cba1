package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"mail2md-backend/internal/prefs/domain"
)

// PreferencesRepository reads and writes the legacy settings row.
type PreferencesRepository interface {
	FindByEmail(email string) (*domain.UserPreferences, error)
	Upsert(prefs *domain.UserPreferences) error
}

type preferencesRepository struct {
	db *gorm.DB
}

func NewPreferencesRepository(db *gorm.DB) PreferencesRepository {
	return &preferencesRepository{db: db}
}

func (r *preferencesRepository) FindByEmail(email string) (*domain.UserPreferences, error) {
	var prefs domain.UserPreferences
	err := r.db.Where("partition_key = ? AND email = ?", domain.PreferencesPartition, strings.ToLower(email)).
		First(&prefs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &prefs, nil
}

func (r *preferencesRepository) Upsert(prefs *domain.UserPreferences) error {
	prefs.PartitionKey = domain.PreferencesPartition
	prefs.Email = strings.ToLower(prefs.Email)
	prefs.UpdatedAt = time.Now()
	return r.db.Save(prefs).Error
}
