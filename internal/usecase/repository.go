package usecase

import (
	"context"
	"time"

	"github.com/totcainc/knowledge-shadows/internal/domain"
)

type ShadowRepository interface {
	CreateShadow(ctx context.Context, s domain.Shadow) error
	GetShadow(ctx context.Context, id string) (domain.Shadow, bool, error)
	DeleteShadow(ctx context.Context, id string) error
	ListShadows(ctx context.Context, f ShadowFilter) ([]domain.Shadow, int, error)
	SetStatus(ctx context.Context, id string, status domain.Status, procErr *string) (domain.Shadow, bool, error)
	SetVideo(ctx context.Context, id string, url string) (domain.Shadow, bool, error)
	SetAnalysis(ctx context.Context, id string, a Analysis) (domain.Shadow, bool, error)
	PatchShadow(ctx context.Context, id string, p ShadowPatch) (domain.Shadow, bool, error)
}

type ArtifactRepository interface {
	ReplaceArtifacts(ctx context.Context, shadowID string, chapters []domain.Chapter, points []domain.DecisionPoint) error
	ListChapters(ctx context.Context, shadowID string) ([]domain.Chapter, error)
	ListDecisionPoints(ctx context.Context, shadowID string) ([]domain.DecisionPoint, error)
}

// Analysis is what the processing pipeline derives from an uploaded
// recording.
type Analysis struct {
	Transcript       string
	ExecutiveSummary string
	KeyTakeaways     []string
	QualityScore     int
	DurationSeconds  int
	ProcessedAt      time.Time
}

// ShadowPatch carries optional field updates; nil means "leave as is".
type ShadowPatch struct {
	Title     *string
	UserNotes *string
	Tags      []string
	Status    *domain.Status
}

type ShadowFilter struct {
	Status *domain.Status
	Skip   int
	Limit  int
}
