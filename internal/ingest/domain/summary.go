package domain

import (
	storagedomain "mail2md-backend/internal/storage/domain"
)

// ProcessingSummary is the webhook-facing result of one inbound email.
type ProcessingSummary struct {
	Success             bool                            `json:"success"`
	FileName            string                          `json:"fileName"`
	Results             []storagedomain.DeliveryOutcome `json:"perProviderResults"`
	NotificationSent    bool                            `json:"notificationSent"`
	ProvidersNeedReauth []string                        `json:"providersNeedReauth,omitempty"`
}
