package domain

import "time"

// Delivery methods for converted documents.
const (
	DeliveryMethodStorage = "storage"
	DeliveryMethodEmail   = "email"
	DeliveryMethodBoth    = "both"
)

// UserPreferences is the legacy single-provider settings row, kept for
// backward compatibility while users migrate to per-provider connections.
// PartitionKey is a fixed constant from the old table layout.
type UserPreferences struct {
	PartitionKey   string `gorm:"primaryKey;size:32"`
	Email          string `gorm:"primaryKey;size:320"`
	Provider       string
	DeliveryMethod string
	UpdatedAt      time.Time
}

const PreferencesPartition = "userprefs"
