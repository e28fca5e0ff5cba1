package domain

import "time"

// IdentityLink is one direction of a symmetric edge between two email
// addresses belonging to the same person. Creating a link always writes
// both directions.
type IdentityLink struct {
	ID          string `gorm:"primaryKey"`
	Email       string `gorm:"uniqueIndex:idx_link_pair;size:320"`
	LinkedEmail string `gorm:"uniqueIndex:idx_link_pair;size:320"`
	Provider    string `gorm:"size:32"`
	CreatedAt   time.Time
}
