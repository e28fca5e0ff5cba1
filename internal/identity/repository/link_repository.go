package repository

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mail2md-backend/internal/identity/domain"
)

// LinkRepository persists identity-link edges. Both directions of a pair
// are written in one transaction so the graph can never be half-linked.
type LinkRepository interface {
	CreatePair(emailA, emailB, provider string) error
	FindByEmail(email string) ([]domain.IdentityLink, error)
	DeletePair(emailA, emailB string) error
}

type linkRepository struct {
	db *gorm.DB
}

func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) CreatePair(emailA, emailB, provider string) error {
	emailA = strings.ToLower(emailA)
	emailB = strings.ToLower(emailB)
	now := time.Now()
	links := []domain.IdentityLink{
		{ID: uuid.New().String(), Email: emailA, LinkedEmail: emailB, Provider: provider, CreatedAt: now},
		{ID: uuid.New().String(), Email: emailB, LinkedEmail: emailA, Provider: provider, CreatedAt: now},
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, link := range links {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *linkRepository) FindByEmail(email string) ([]domain.IdentityLink, error) {
	var links []domain.IdentityLink
	err := r.db.Where("email = ?", strings.ToLower(email)).Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (r *linkRepository) DeletePair(emailA, emailB string) error {
	emailA = strings.ToLower(emailA)
	emailB = strings.ToLower(emailB)
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND linked_email = ?", emailA, emailB).Delete(&domain.IdentityLink{}).Error; err != nil {
			return err
		}
		return tx.Where("email = ? AND linked_email = ?", emailB, emailA).Delete(&domain.IdentityLink{}).Error
	})
}
