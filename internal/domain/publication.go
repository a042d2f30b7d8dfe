package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned when no publication record exists for an item.
var ErrRecordNotFound = errors.New("publication record not found")

// ErrContentNotFound is returned when a content item does not exist.
var ErrContentNotFound = errors.New("content item not found")

// PublicationStatus is the publication state of one content item.
type PublicationStatus string

const (
	// StatusUnsubmitted is never stored: it is the absence of a record.
	StatusUnsubmitted PublicationStatus = "unsubmitted"
	StatusDraft       PublicationStatus = "draft"
	StatusApproved    PublicationStatus = "approved"
	StatusPosting     PublicationStatus = "posting"
	StatusPublished   PublicationStatus = "published"
	StatusFailed      PublicationStatus = "failed"
	StatusSkipped     PublicationStatus = "skipped"
)

// Terminal reports whether no scheduled run may move the record further.
func (s PublicationStatus) Terminal() bool {
	return s == StatusPublished || s == StatusFailed || s == StatusSkipped
}

// PreState reports whether an attempt may start from this status.
func (s PublicationStatus) PreState() bool {
	return s == StatusUnsubmitted || s == StatusDraft || s == StatusApproved
}

// ImageSource records which step of the image chain produced the card.
type ImageSource string

const (
	ImageSourceNone      ImageSource = "none"
	ImageSourceOverride  ImageSource = "override"
	ImageSourceCard      ImageSource = "card"
	ImageSourceScraped   ImageSource = "scraped"
	ImageSourceGenerated ImageSource = "generated"
	ImageSourceFailed    ImageSource = "failed"
)

// PublicationRecord tracks publication state one-to-one with a content item.
type PublicationRecord struct {
	ContentID       uuid.UUID
	Status          PublicationStatus
	Attempts        int
	LastAttemptAt   *time.Time
	LastError       string
	ExternalPostID  string
	ExternalPostURL string
	ImageSource     ImageSource
	ApprovedBy      string
	UpdatedAt       time.Time
}

// ErrorTextLimit bounds error strings persisted on a record.
const ErrorTextLimit = 500

// TruncateError clips an error message for storage.
func TruncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= ErrorTextLimit {
		return msg
	}
	return string(runes[:ErrorTextLimit])
}

// NextStatusOnFailure returns the state a failed attempt leaves behind:
// FAILED once the attempt ceiling is hit, otherwise the pre-state the
// attempt was acquired from.
func NextStatusOnFailure(attempts, maxAttempts int, revertTo PublicationStatus) PublicationStatus {
	if attempts >= maxAttempts {
		return StatusFailed
	}
	if !revertTo.PreState() || revertTo == StatusUnsubmitted {
		return StatusApproved
	}
	return revertTo
}

// PublishedOutcome carries everything the success transaction writes.
type PublishedOutcome struct {
	ContentID       uuid.UUID
	PostType        PostType
	ExternalPostID  string
	ExternalPostURL string
	ImageSource     ImageSource
	ApprovedBy      string
}
