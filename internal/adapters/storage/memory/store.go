package memory

import (
	"context"
	"sync"
	"time"

	"github.com/totcainc/knowledge-shadows/internal/domain"
	"github.com/totcainc/knowledge-shadows/internal/usecase"
)

type shadowEntry struct {
	shadow    domain.Shadow
	chapters  []domain.Chapter
	points    []domain.DecisionPoint
	createdAt time.Time
}

// Store is the in-memory shadow repository backing the development server.
// Insertion order is tracked so listing can return newest-first without
// sorting; capacity and TTL eviction drop the oldest entries.
type Store struct {
	mu    sync.RWMutex
	order []string
	items map[string]*shadowEntry

	maxShadows int
	ttl        time.Duration
}

func NewStore(maxShadows int, ttl time.Duration) *Store {
	return &Store{
		order:      make([]string, 0, maxShadows),
		items:      make(map[string]*shadowEntry, maxShadows),
		maxShadows: maxShadows,
		ttl:        ttl,
	}
}

// ShadowRepository

func (s *Store) CreateShadow(ctx context.Context, shadow domain.Shadow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()
	if len(s.items) >= s.maxShadows {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
	}
	s.items[shadow.ID] = &shadowEntry{shadow: shadow, createdAt: time.Now()}
	s.order = append(s.order, shadow.ID)
	return nil
}

func (s *Store) GetShadow(ctx context.Context, id string) (domain.Shadow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.items[id]; ok {
		return e.shadow, true, nil
	}
	return domain.Shadow{}, false, nil
}

func (s *Store) DeleteShadow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; ok {
		delete(s.items, id)
		for i, sid := range s.order {
			if sid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (s *Store) ListShadows(ctx context.Context, f usecase.ShadowFilter) ([]domain.Shadow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]domain.Shadow, 0, len(s.items))
	// newest first
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.items[s.order[i]]
		if e == nil {
			continue
		}
		if f.Status != nil && e.shadow.Status != *f.Status {
			continue
		}
		results = append(results, e.shadow)
	}
	total := len(results)
	start := f.Skip
	if start > total {
		start = total
	}
	end := start + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return results[start:end], total, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status domain.Status, procErr *string) (domain.Shadow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return domain.Shadow{}, false, nil
	}
	e.shadow.Status = status
	e.shadow.ProcessingError = procErr
	e.shadow.UpdatedAt = time.Now().UTC()
	return e.shadow, true, nil
}

func (s *Store) SetVideo(ctx context.Context, id string, url string) (domain.Shadow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return domain.Shadow{}, false, nil
	}
	e.shadow.RawVideoURL = &url
	e.shadow.UpdatedAt = time.Now().UTC()
	return e.shadow, true, nil
}

func (s *Store) SetAnalysis(ctx context.Context, id string, a usecase.Analysis) (domain.Shadow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return domain.Shadow{}, false, nil
	}
	e.shadow.Transcript = &a.Transcript
	e.shadow.ExecutiveSummary = &a.ExecutiveSummary
	e.shadow.KeyTakeaways = a.KeyTakeaways
	e.shadow.QualityScore = a.QualityScore
	e.shadow.DurationSeconds = a.DurationSeconds
	processedAt := a.ProcessedAt
	e.shadow.ProcessedAt = &processedAt
	e.shadow.UpdatedAt = time.Now().UTC()
	return e.shadow, true, nil
}

func (s *Store) PatchShadow(ctx context.Context, id string, p usecase.ShadowPatch) (domain.Shadow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return domain.Shadow{}, false, nil
	}
	if p.Title != nil {
		e.shadow.Title = *p.Title
	}
	if p.UserNotes != nil {
		e.shadow.UserNotes = *p.UserNotes
	}
	if p.Tags != nil {
		e.shadow.Tags = p.Tags
	}
	if p.Status != nil {
		e.shadow.Status = *p.Status
	}
	e.shadow.UpdatedAt = time.Now().UTC()
	return e.shadow, true, nil
}

// ArtifactRepository

func (s *Store) ReplaceArtifacts(ctx context.Context, shadowID string, chapters []domain.Chapter, points []domain.DecisionPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[shadowID]; ok {
		e.chapters = chapters
		e.points = points
	}
	return nil
}

func (s *Store) ListChapters(ctx context.Context, shadowID string) ([]domain.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[shadowID]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Chapter, len(e.chapters))
	copy(out, e.chapters)
	return out, nil
}

func (s *Store) ListDecisionPoints(ctx context.Context, shadowID string) ([]domain.DecisionPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[shadowID]
	if !ok {
		return nil, nil
	}
	out := make([]domain.DecisionPoint, len(e.points))
	copy(out, e.points)
	return out, nil
}

func (s *Store) evictExpiredLocked() {
	if s.ttl <= 0 {
		return
	}
	now := time.Now()
	i := 0
	for i < len(s.order) {
		id := s.order[i]
		e := s.items[id]
		if e == nil || now.Sub(e.createdAt) > s.ttl {
			delete(s.items, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			continue
		}
		i++
	}
}
