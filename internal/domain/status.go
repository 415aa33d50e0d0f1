package domain

type Status string

const (
	StatusCapturing      Status = "capturing"
	StatusProcessing     Status = "processing"
	StatusReadyForReview Status = "ready_for_review"
	StatusPublished      Status = "published"
	StatusFailed         Status = "failed"
	StatusArchived       Status = "archived"
)

// Terminal reports whether a shadow in this status is done moving on its own.
// A poller watching a processing shadow stops once Terminal returns true.
func (s Status) Terminal() bool {
	return s != StatusCapturing && s != StatusProcessing
}

func (s Status) Valid() bool {
	switch s {
	case StatusCapturing, StatusProcessing, StatusReadyForReview, StatusPublished, StatusFailed, StatusArchived:
		return true
	}
	return false
}
