package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/domain"
)

// SimulatedProcessor stands in for the real transcription/analysis pipeline
// in development and tests. It waits a configurable delay, then either marks
// the shadow failed (when failure injection is armed) or fills in generated
// transcript, summary, chapters and decision points and moves it to
// ready_for_review.
type SimulatedProcessor struct {
	shadows   ShadowRepository
	artifacts ArtifactRepository
	log       zerolog.Logger
	delay     time.Duration

	// Notify, when set, is called after every status transition the
	// processor makes. Wired to the monitor hub by the server.
	Notify func(shadowID string, status domain.Status)

	failNext atomic.Bool

	wg     sync.WaitGroup
	closed chan struct{}
}

func NewSimulatedProcessor(shadows ShadowRepository, artifacts ArtifactRepository, delay time.Duration, log zerolog.Logger) *SimulatedProcessor {
	return &SimulatedProcessor{
		shadows:   shadows,
		artifacts: artifacts,
		log:       log.With().Str("component", "processor").Logger(),
		delay:     delay,
		closed:    make(chan struct{}),
	}
}

// FailNext arms one simulated processing failure. Used by tests and the dev
// server to exercise the failed/retry path.
func (p *SimulatedProcessor) FailNext() {
	p.failNext.Store(true)
}

func (p *SimulatedProcessor) Enqueue(shadowID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(shadowID)
	}()
}

// Close waits for in-flight runs to finish; new delays are cut short.
func (p *SimulatedProcessor) Close() {
	close(p.closed)
	p.wg.Wait()
}

func (p *SimulatedProcessor) run(shadowID string) {
	select {
	case <-time.After(p.delay):
	case <-p.closed:
		return
	}
	ctx := context.Background()

	shadow, ok, err := p.shadows.GetShadow(ctx, shadowID)
	if err != nil || !ok {
		p.log.Error().Err(err).Str("shadow_id", shadowID).Msg("shadow vanished before processing")
		return
	}

	if p.failNext.CompareAndSwap(true, false) {
		msg := "simulated processing failure"
		if _, _, err := p.shadows.SetStatus(ctx, shadowID, domain.StatusFailed, &msg); err != nil {
			p.log.Error().Err(err).Str("shadow_id", shadowID).Msg("marking shadow failed")
			return
		}
		p.log.Warn().Str("shadow_id", shadowID).Msg("processing failed (injected)")
		p.notify(shadowID, domain.StatusFailed)
		return
	}

	duration := shadow.DurationSeconds
	if duration <= 0 {
		duration = 300
	}
	analysis := Analysis{
		Transcript:       fmt.Sprintf("[generated transcript for %q]", shadow.Title),
		ExecutiveSummary: fmt.Sprintf("A walkthrough of %s.", shadow.Title),
		KeyTakeaways:     []string{"Key steps were demonstrated on screen.", "Decisions were narrated as they happened."},
		QualityScore:     82,
		DurationSeconds:  duration,
		ProcessedAt:      time.Now().UTC(),
	}
	if _, _, err := p.shadows.SetAnalysis(ctx, shadowID, analysis); err != nil {
		p.log.Error().Err(err).Str("shadow_id", shadowID).Msg("storing analysis")
		return
	}
	if err := p.artifacts.ReplaceArtifacts(ctx, shadowID, generateChapters(shadowID, shadow.Title, duration), generateDecisionPoints(shadowID, duration)); err != nil {
		p.log.Error().Err(err).Str("shadow_id", shadowID).Msg("storing artifacts")
	}
	if _, _, err := p.shadows.SetStatus(ctx, shadowID, domain.StatusReadyForReview, nil); err != nil {
		p.log.Error().Err(err).Str("shadow_id", shadowID).Msg("finishing processing")
		return
	}
	p.log.Info().Str("shadow_id", shadowID).Msg("processing complete")
	p.notify(shadowID, domain.StatusReadyForReview)
}

func (p *SimulatedProcessor) notify(shadowID string, status domain.Status) {
	if p.Notify != nil {
		p.Notify(shadowID, status)
	}
}

func generateChapters(shadowID, title string, duration int) []domain.Chapter {
	titles := []string{"Introduction", "Main walkthrough", "Wrap-up"}
	step := float64(duration) / float64(len(titles))
	out := make([]domain.Chapter, 0, len(titles))
	for i, t := range titles {
		out = append(out, domain.Chapter{
			ID:           uuid.NewString(),
			ShadowID:     shadowID,
			Title:        t,
			StartSeconds: step * float64(i),
			EndSeconds:   step * float64(i+1),
			OrderIndex:   i,
			Summary:      fmt.Sprintf("%s of %s", t, title),
		})
	}
	return out
}

func generateDecisionPoints(shadowID string, duration int) []domain.DecisionPoint {
	mid := float64(duration) / 2
	return []domain.DecisionPoint{
		{
			ID:                     uuid.NewString(),
			ShadowID:               shadowID,
			TimestampSeconds:       mid / 2,
			DecisionDescription:    "Chose the primary workflow path",
			Reasoning:              "The narrator explained why this route is preferred.",
			AlternativesConsidered: []string{"manual process", "deferred handling"},
			ConfidenceScore:        0.7,
		},
		{
			ID:                  uuid.NewString(),
			ShadowID:            shadowID,
			TimestampSeconds:    mid,
			DecisionDescription: "Validated the result before continuing",
			Reasoning:           "A checkpoint reduces rework if the earlier step failed.",
			ConfidenceScore:     0.6,
		},
	}
}
