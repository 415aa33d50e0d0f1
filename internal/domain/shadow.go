package domain

import "time"

// Shadow is the backend-owned record of one captured walkthrough and its
// derived artifacts. Clients never mutate it directly; they go through the
// REST facade.
type Shadow struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	UserNotes        string     `json:"user_notes,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DurationSeconds  int        `json:"duration_seconds"`
	RawVideoURL      *string    `json:"raw_video_url"`
	Transcript       *string    `json:"transcript"`
	ExecutiveSummary *string    `json:"executive_summary"`
	KeyTakeaways     []string   `json:"key_takeaways,omitempty"`
	QualityScore     int        `json:"quality_score"`
	ViewCount        int        `json:"view_count"`
	ProcessingError  *string    `json:"processing_error,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// Chapter is an AI-extracted segment of a shadow's timeline.
type Chapter struct {
	ID           string  `json:"id"`
	ShadowID     string  `json:"shadow_id"`
	Title        string  `json:"title"`
	StartSeconds float64 `json:"start_timestamp_seconds"`
	EndSeconds   float64 `json:"end_timestamp_seconds"`
	OrderIndex   int     `json:"order_index"`
	Summary      string  `json:"summary,omitempty"`
}

// DecisionPoint is an AI-extracted reasoning/choice moment in a shadow.
type DecisionPoint struct {
	ID                     string   `json:"id"`
	ShadowID               string   `json:"shadow_id"`
	TimestampSeconds       float64  `json:"timestamp_seconds"`
	DecisionDescription    string   `json:"decision_description"`
	Reasoning              string   `json:"reasoning"`
	AlternativesConsidered []string `json:"alternatives_considered"`
	ContextBefore          *string  `json:"context_before"`
	ConfidenceScore        float64  `json:"confidence_score"`
	UserVerified           bool     `json:"user_verified"`
}
