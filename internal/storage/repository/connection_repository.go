package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mail2md-backend/internal/storage/domain"
)

// ConnectionRepository persists StorageConnection rows keyed by
// (lowercased email, lowercased provider).
type ConnectionRepository interface {
	FindActiveByEmail(email string) ([]domain.StorageConnection, error)
	FindByEmailAndProvider(email, provider string) (*domain.StorageConnection, error)
	Upsert(conn *domain.StorageConnection) error
	MarkSynced(email, provider string, at time.Time) error
	Deactivate(email, provider string) error
	Delete(email, provider string) error
}

type connectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) FindActiveByEmail(email string) ([]domain.StorageConnection, error) {
	var conns []domain.StorageConnection
	err := r.db.Where("email = ? AND is_active = ?", strings.ToLower(email), true).
		Order("created_at asc").Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *connectionRepository) FindByEmailAndProvider(email, provider string) (*domain.StorageConnection, error) {
	var conn domain.StorageConnection
	err := r.db.Where("email = ? AND provider = ?", strings.ToLower(email), strings.ToLower(provider)).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) Upsert(conn *domain.StorageConnection) error {
	conn.Email = strings.ToLower(conn.Email)
	conn.Provider = strings.ToLower(conn.Provider)
	existing, err := r.FindByEmailAndProvider(conn.Email, conn.Provider)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing == nil {
		conn.ID = uuid.New().String()
		conn.CreatedAt = now
		conn.UpdatedAt = now
		return r.db.Create(conn).Error
	}
	conn.ID = existing.ID
	conn.CreatedAt = existing.CreatedAt
	conn.LastSuccessfulSync = existing.LastSuccessfulSync
	conn.UpdatedAt = now
	return r.db.Save(conn).Error
}

func (r *connectionRepository) MarkSynced(email, provider string, at time.Time) error {
	return r.db.Model(&domain.StorageConnection{}).
		Where("email = ? AND provider = ?", strings.ToLower(email), strings.ToLower(provider)).
		Updates(map[string]interface{}{"last_successful_sync": at, "updated_at": time.Now()}).Error
}

func (r *connectionRepository) Deactivate(email, provider string) error {
	return r.db.Model(&domain.StorageConnection{}).
		Where("email = ? AND provider = ?", strings.ToLower(email), strings.ToLower(provider)).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}

func (r *connectionRepository) Delete(email, provider string) error {
	return r.db.Where("email = ? AND provider = ?", strings.ToLower(email), strings.ToLower(provider)).
		Delete(&domain.StorageConnection{}).Error
}
