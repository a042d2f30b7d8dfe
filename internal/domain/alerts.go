package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// AlertDailyCapReached fires when a run finds the daily posting cap spent.
	AlertDailyCapReached = "daily_cap_reached"
	// AlertPublicationFailed fires when an item reaches terminal FAILED.
	AlertPublicationFailed = "publication_failed"
)

// Alert is an operational event published to the ops exchange.
type Alert struct {
	Event      string
	ContentID  *uuid.UUID
	Metadata   map[string]any
	OccurredAt time.Time
}
