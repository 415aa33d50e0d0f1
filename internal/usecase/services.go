package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/totcainc/knowledge-shadows/internal/domain"
)

var ErrNotFound = errors.New("shadow not found")

// ErrRetryNotFailed rejects retry on a shadow that is not in the failed
// status.
type ErrRetryNotFailed struct {
	Current domain.Status
}

func (e *ErrRetryNotFailed) Error() string {
	return fmt.Sprintf("can only retry failed shadows, current status: %s", e.Current)
}

// Processor receives shadow ids whose capture has ended and runs the
// asynchronous analysis pipeline on them.
type Processor interface {
	Enqueue(shadowID string)
}

type ShadowService struct {
	shadows   ShadowRepository
	artifacts ArtifactRepository
	processor Processor
}

func NewShadowService(shadows ShadowRepository, artifacts ArtifactRepository, processor Processor) *ShadowService {
	return &ShadowService{shadows: shadows, artifacts: artifacts, processor: processor}
}

// Start creates a new shadow record in the capturing status.
func (s *ShadowService) Start(ctx context.Context, title, userNotes string, tags []string) (domain.Shadow, error) {
	t, err := domain.NormalizeTitle(title)
	if err != nil {
		return domain.Shadow{}, err
	}
	normTags, err := domain.NormalizeTags(tags)
	if err != nil {
		return domain.Shadow{}, err
	}
	now := time.Now().UTC()
	shadow := domain.Shadow{
		ID:        uuid.NewString(),
		Title:     t,
		UserNotes: userNotes,
		Tags:      normTags,
		Status:    domain.StatusCapturing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.shadows.CreateShadow(ctx, shadow); err != nil {
		return domain.Shadow{}, err
	}
	return shadow, nil
}

// End moves the shadow into processing and hands it to the pipeline.
func (s *ShadowService) End(ctx context.Context, id string) (domain.Shadow, error) {
	shadow, ok, err := s.shadows.SetStatus(ctx, id, domain.StatusProcessing, nil)
	if err != nil {
		return domain.Shadow{}, err
	}
	if !ok {
		return domain.Shadow{}, ErrNotFound
	}
	s.processor.Enqueue(id)
	return shadow, nil
}

// Retry re-triggers processing for a failed shadow without a new upload.
func (s *ShadowService) Retry(ctx context.Context, id string) (domain.Shadow, error) {
	current, ok, err := s.shadows.GetShadow(ctx, id)
	if err != nil {
		return domain.Shadow{}, err
	}
	if !ok {
		return domain.Shadow{}, ErrNotFound
	}
	if current.Status != domain.StatusFailed {
		return domain.Shadow{}, &ErrRetryNotFailed{Current: current.Status}
	}
	shadow, _, err := s.shadows.SetStatus(ctx, id, domain.StatusProcessing, nil)
	if err != nil {
		return domain.Shadow{}, err
	}
	s.processor.Enqueue(id)
	return shadow, nil
}

func (s *ShadowService) Get(ctx context.Context, id string) (domain.Shadow, bool, error) {
	return s.shadows.GetShadow(ctx, id)
}

func (s *ShadowService) List(ctx context.Context, f ShadowFilter) ([]domain.Shadow, int, error) {
	return s.shadows.ListShadows(ctx, f)
}

func (s *ShadowService) Delete(ctx context.Context, id string) error {
	return s.shadows.DeleteShadow(ctx, id)
}

func (s *ShadowService) Patch(ctx context.Context, id string, p ShadowPatch) (domain.Shadow, error) {
	if p.Title != nil {
		t, err := domain.NormalizeTitle(*p.Title)
		if err != nil {
			return domain.Shadow{}, err
		}
		p.Title = &t
	}
	if p.Tags != nil {
		tags, err := domain.NormalizeTags(p.Tags)
		if err != nil {
			return domain.Shadow{}, err
		}
		p.Tags = tags
	}
	if p.Status != nil && !p.Status.Valid() {
		return domain.Shadow{}, fmt.Errorf("invalid status %q", *p.Status)
	}
	shadow, ok, err := s.shadows.PatchShadow(ctx, id, p)
	if err != nil {
		return domain.Shadow{}, err
	}
	if !ok {
		return domain.Shadow{}, ErrNotFound
	}
	return shadow, nil
}

// AttachVideo records the uploaded media location on the shadow.
func (s *ShadowService) AttachVideo(ctx context.Context, id string, url string) (domain.Shadow, error) {
	shadow, ok, err := s.shadows.SetVideo(ctx, id, url)
	if err != nil {
		return domain.Shadow{}, err
	}
	if !ok {
		return domain.Shadow{}, ErrNotFound
	}
	return shadow, nil
}

func (s *ShadowService) ListChapters(ctx context.Context, shadowID string) ([]domain.Chapter, error) {
	return s.artifacts.ListChapters(ctx, shadowID)
}

func (s *ShadowService) ListDecisionPoints(ctx context.Context, shadowID string) ([]domain.DecisionPoint, error) {
	return s.artifacts.ListDecisionPoints(ctx, shadowID)
}
