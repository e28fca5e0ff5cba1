package domain

import "time"

// StorageConnection records that a user pointed one storage provider at a
// root folder. Only active connections participate in delivery fan-out.
type StorageConnection struct {
	ID                 string `gorm:"primaryKey"`
	Email              string `gorm:"uniqueIndex:idx_conn_email_provider;size:320"`
	Provider           string `gorm:"uniqueIndex:idx_conn_email_provider;size:32"`
	RootFolder         string
	DriveID            string
	FolderID           string
	ConsentGrantedAt   time.Time
	LastSuccessfulSync *time.Time
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DeliveryOutcome is the per-provider result of one save attempt.
// RequiresReauth separates auth failures, which the user must fix, from
// transient ones.
type DeliveryOutcome struct {
	Provider       string `json:"provider"`
	Success        bool   `json:"success"`
	FilePath       string `json:"filePath,omitempty"`
	FileID         string `json:"fileId,omitempty"`
	WebURL         string `json:"webUrl,omitempty"`
	Error          string `json:"error,omitempty"`
	RequiresReauth bool   `json:"requiresReauth,omitempty"`
}

// FolderInfo is one entry from a provider folder listing.
type FolderInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}
