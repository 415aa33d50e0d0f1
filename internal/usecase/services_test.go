package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/adapters/storage/memory"
	"github.com/totcainc/knowledge-shadows/internal/domain"
	"github.com/totcainc/knowledge-shadows/internal/usecase"
)

type recordingProcessor struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingProcessor) Enqueue(id string) {
	p.mu.Lock()
	p.ids = append(p.ids, id)
	p.mu.Unlock()
}

func (p *recordingProcessor) enqueued() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func newTestService() (*usecase.ShadowService, *memory.Store, *recordingProcessor) {
	store := memory.NewStore(100, time.Hour)
	proc := &recordingProcessor{}
	return usecase.NewShadowService(store, store, proc), store, proc
}

func TestServiceStartNormalizes(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	shadow, err := svc.Start(ctx, "  My Walkthrough  ", "notes", []string{" K8s "})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if shadow.ID == "" || shadow.Title != "My Walkthrough" || shadow.Status != domain.StatusCapturing {
		t.Fatalf("unexpected shadow: %+v", shadow)
	}
	if len(shadow.Tags) != 1 || shadow.Tags[0] != "k8s" {
		t.Fatalf("tags not normalized: %v", shadow.Tags)
	}

	if _, err := svc.Start(ctx, "   ", "", nil); !errors.Is(err, domain.ErrEmptyTitle) {
		t.Fatalf("empty title: %v", err)
	}
	if _, err := svc.Start(ctx, "ok", "", []string{"bad tag!"}); err == nil {
		t.Fatal("invalid tag accepted")
	}
}

func TestServiceEndQueuesProcessing(t *testing.T) {
	svc, _, proc := newTestService()
	ctx := context.Background()

	shadow, _ := svc.Start(ctx, "t", "", nil)
	ended, err := svc.End(ctx, shadow.ID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != domain.StatusProcessing {
		t.Fatalf("status = %s", ended.Status)
	}
	if ids := proc.enqueued(); len(ids) != 1 || ids[0] != shadow.ID {
		t.Fatalf("processor not enqueued: %v", ids)
	}

	if _, err := svc.End(ctx, "missing"); !errors.Is(err, usecase.ErrNotFound) {
		t.Fatalf("end missing: %v", err)
	}
}

func TestServiceRetryOnlyFromFailed(t *testing.T) {
	svc, store, proc := newTestService()
	ctx := context.Background()

	shadow, _ := svc.Start(ctx, "t", "", nil)
	_, err := svc.Retry(ctx, shadow.ID)
	var retryErr *usecase.ErrRetryNotFailed
	if !errors.As(err, &retryErr) || retryErr.Current != domain.StatusCapturing {
		t.Fatalf("retry from capturing: %v", err)
	}

	msg := "boom"
	_, _, _ = store.SetStatus(ctx, shadow.ID, domain.StatusFailed, &msg)
	retried, err := svc.Retry(ctx, shadow.ID)
	if err != nil || retried.Status != domain.StatusProcessing {
		t.Fatalf("retry from failed: %+v %v", retried, err)
	}
	if ids := proc.enqueued(); len(ids) != 1 {
		t.Fatalf("retry did not enqueue: %v", ids)
	}

	if _, err := svc.Retry(ctx, "missing"); !errors.Is(err, usecase.ErrNotFound) {
		t.Fatalf("retry missing: %v", err)
	}
}

func TestServicePatchValidates(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	shadow, _ := svc.Start(ctx, "t", "", nil)

	bad := domain.Status("nonsense")
	if _, err := svc.Patch(ctx, shadow.ID, usecase.ShadowPatch{Status: &bad}); err == nil {
		t.Fatal("invalid status accepted")
	}

	empty := "  "
	if _, err := svc.Patch(ctx, shadow.ID, usecase.ShadowPatch{Title: &empty}); !errors.Is(err, domain.ErrEmptyTitle) {
		t.Fatalf("empty title patch: %v", err)
	}

	title := " Renamed "
	got, err := svc.Patch(ctx, shadow.ID, usecase.ShadowPatch{Title: &title, Tags: []string{"OK"}})
	if err != nil || got.Title != "Renamed" || got.Tags[0] != "ok" {
		t.Fatalf("patch: %+v %v", got, err)
	}

	if _, err := svc.Patch(ctx, "missing", usecase.ShadowPatch{}); !errors.Is(err, usecase.ErrNotFound) {
		t.Fatalf("patch missing: %v", err)
	}
}

func TestSimulatedProcessorSuccess(t *testing.T) {
	store := memory.NewStore(100, time.Hour)
	proc := usecase.NewSimulatedProcessor(store, store, time.Millisecond, zerolog.Nop())
	svc := usecase.NewShadowService(store, store, proc)
	ctx := context.Background()

	notified := make(chan struct{}, 4)
	proc.Notify = func(id string, status domain.Status) {
		notified <- struct{}{}
	}

	shadow, _ := svc.Start(ctx, "Deploy guide", "", nil)
	if _, err := svc.End(ctx, shadow.ID); err != nil {
		t.Fatalf("End: %v", err)
	}

	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("processor never finished")
	}

	got, _, _ := store.GetShadow(ctx, shadow.ID)
	if got.Status != domain.StatusReadyForReview {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Transcript == nil || got.ExecutiveSummary == nil || len(got.KeyTakeaways) == 0 || got.ProcessedAt == nil {
		t.Fatalf("analysis missing: %+v", got)
	}
	if got.DurationSeconds <= 0 || got.QualityScore <= 0 {
		t.Fatalf("defaults missing: %+v", got)
	}

	chapters, _ := store.ListChapters(ctx, shadow.ID)
	points, _ := store.ListDecisionPoints(ctx, shadow.ID)
	if len(chapters) == 0 || len(points) == 0 {
		t.Fatalf("artifacts missing: %d chapters, %d points", len(chapters), len(points))
	}
	for i, c := range chapters {
		if c.OrderIndex != i || c.ShadowID != shadow.ID {
			t.Fatalf("chapter %d malformed: %+v", i, c)
		}
	}

	proc.Close()
}

func TestSimulatedProcessorFailureInjectionAndRetry(t *testing.T) {
	store := memory.NewStore(100, time.Hour)
	proc := usecase.NewSimulatedProcessor(store, store, time.Millisecond, zerolog.Nop())
	svc := usecase.NewShadowService(store, store, proc)
	ctx := context.Background()

	notified := make(chan domain.Status, 4)
	proc.Notify = func(id string, status domain.Status) { notified <- status }

	shadow, _ := svc.Start(ctx, "t", "", nil)
	proc.FailNext()
	_, _ = svc.End(ctx, shadow.ID)

	if status := <-notified; status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
	got, _, _ := store.GetShadow(ctx, shadow.ID)
	if got.ProcessingError == nil || *got.ProcessingError == "" {
		t.Fatalf("failed shadow has no error: %+v", got)
	}

	// retry runs the pipeline again, this time to completion
	if _, err := svc.Retry(ctx, shadow.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if status := <-notified; status != domain.StatusReadyForReview {
		t.Fatalf("expected ready_for_review after retry, got %s", status)
	}
	got, _, _ = store.GetShadow(ctx, shadow.ID)
	if got.ProcessingError != nil {
		t.Fatalf("processing error not cleared: %+v", got)
	}

	proc.Close()
}
