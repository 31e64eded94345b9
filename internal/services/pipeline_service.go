// Package services – PipelineService
//
// This file implements the image submission pipeline: the optimistic
// capture-analyze-commit flow that turns an uploaded photo into a committed
// report and a finalized chat message.
//
// The run has four stages. An optimistic user message is appended first so
// the chat reflects the upload immediately. The asset upload and the image
// analysis then run concurrently; the first failure cancels the other. The
// commit writes the report (created or updated in place) and appends the AI
// confirmation. Finally the optimistic message is rewritten with the durable
// asset URL and the analysis caption.
//
// Rollback removes the optimistic message and nothing else. A failure after
// the report commit leaves the report in place; only the chat's optimistic
// entry is withdrawn. Callers retry by resubmitting, optionally under an
// idempotency key that replays the recorded outcome instead of re-running.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/visionary-ai/go-report-backend/internal/domain"
	"github.com/visionary-ai/go-report-backend/internal/repo"
)

const (
	optimisticCaption = "Image uploaded"
	finalizedCaption  = "Image analyzed: %s"

	confirmationCreated = "A new report has been created"
	confirmationUpdated = "The report has been updated"
)

// Analyzer is the analysis-service capability the pipeline needs: one
// detection per image. One attempt, no retries.
type Analyzer interface {
	Analyze(ctx context.Context, userID string, data []byte, filename string) (*domain.Detection, error)
}

// AssetStore persists raw image bytes and returns a durable URL.
type AssetStore interface {
	Put(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// EventPublisher announces committed reports to downstream consumers.
// Publishing is best-effort and never fails a run.
type EventPublisher interface {
	ReportCommitted(ctx context.Context, reportID, chatID, action string) error
}

// pipelineRuns counts completed pipeline runs by outcome.
var pipelineRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Image pipeline runs by outcome (finalized, rolled_back, replayed).",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(pipelineRuns)
}

// PipelineService coordinates the image submission flow.
type PipelineService struct {
	DB      *gorm.DB
	Reports *ReportService
	Assets  AssetStore
	Agent   Analyzer

	// Events may be nil when no broker is configured.
	Events EventPublisher

	// IdempotencyTTL bounds how long a recorded outcome is replayable.
	IdempotencyTTL time.Duration
}

// SubmitImageInput carries one image submission.
type SubmitImageInput struct {
	ChatID         string
	UserID         string
	IdempotencyKey string
	Filename       string
	ContentType    string
	Data           []byte
	Width          int
	Height         int
}

// PipelineResult is the outcome of one pipeline run.
type PipelineResult struct {
	Message       *domain.Message `json:"message"`
	Confirmation  *domain.Message `json:"confirmation,omitempty"`
	Report        *domain.Report  `json:"report"`
	ReportCreated bool            `json:"report_created"`
	Replayed      bool            `json:"replayed"`
}

// SubmitImage runs the full pipeline for one image. On success the returned
// result carries the finalized message, the AI confirmation, and the
// committed report. On failure the optimistic message has been removed and
// the error wraps ErrExternalService or ErrPersistence.
//
// With a non-empty idempotency key, a prior recorded run for the same
// (user, chat, key) tuple short-circuits into a replay of its outcome.
func (s *PipelineService) SubmitImage(ctx context.Context, in SubmitImageInput) (*PipelineResult, error) {
	tr := otel.Tracer("services/PipelineService")
	ctx, span := tr.Start(ctx, "SubmitImage",
		trace.WithAttributes(
			attribute.String("chat.id", in.ChatID),
			attribute.Int("image.bytes", len(in.Data)),
		),
	)
	defer span.End()

	if len(in.Data) == 0 {
		return nil, ErrEmptyImage
	}

	if in.IdempotencyKey != "" {
		if res, ok := s.replay(ctx, in); ok {
			pipelineRuns.WithLabelValues("replayed").Inc()
			return res, nil
		}
	}

	// Stage 1: optimistic append. The message is visible in the chat before
	// any network I/O starts; the pending URI marks the local placeholder.
	optimistic, err := repo.AppendMessage(ctx, s.DB, in.ChatID, domain.Message{
		Sender:     domain.SenderUser,
		Text:       optimisticCaption,
		Optimistic: true,
		Images: domain.ImageRefs{{
			URI:    "pending://" + in.Filename,
			Width:  in.Width,
			Height: in.Height,
		}},
	})
	if err != nil {
		pipelineRuns.WithLabelValues("rolled_back").Inc()
		return nil, fmt.Errorf("%w: append optimistic message: %v", ErrPersistence, err)
	}

	// Stage 2: upload and analysis, concurrently. The first failure cancels
	// the sibling; either failure aborts the run before anything commits.
	var (
		assetURL  string
		detection *domain.Detection
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := s.Assets.Put(gctx, in.Data, in.Filename, in.ContentType)
		if err != nil {
			return fmt.Errorf("upload asset: %w", err)
		}
		assetURL = url
		return nil
	})
	g.Go(func() error {
		det, err := s.Agent.Analyze(gctx, in.UserID, in.Data, in.Filename)
		if err != nil {
			return fmt.Errorf("analyze image: %w", err)
		}
		detection = det
		return nil
	})
	if err := g.Wait(); err != nil {
		s.rollback(ctx, optimistic.ID)
		pipelineRuns.WithLabelValues("rolled_back").Inc()
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	// Stage 3: commit. The chat's current report link decides create vs
	// update; the link itself is written atomically with a created report.
	sess, err := repo.GetChatSession(ctx, s.DB, in.ChatID)
	if err != nil {
		s.rollback(ctx, optimistic.ID)
		pipelineRuns.WithLabelValues("rolled_back").Inc()
		return nil, fmt.Errorf("%w: load chat session: %v", ErrPersistence, err)
	}
	report, created, err := s.Reports.UpsertFromDetection(ctx, sess.ReportID, in.ChatID, *detection)
	if err != nil {
		s.rollback(ctx, optimistic.ID)
		pipelineRuns.WithLabelValues("rolled_back").Inc()
		return nil, fmt.Errorf("%w: commit report: %v", ErrPersistence, err)
	}

	confirmation, err := repo.AppendMessage(ctx, s.DB, in.ChatID, domain.Message{
		Sender: domain.SenderAI,
		Text:   confirmationText(report, created),
	})
	if err != nil {
		// The report is already committed and stays. Only the optimistic
		// message is withdrawn.
		s.rollback(ctx, optimistic.ID)
		pipelineRuns.WithLabelValues("rolled_back").Inc()
		return nil, fmt.Errorf("%w: append confirmation: %v", ErrPersistence, err)
	}

	// Stage 4: finalize. The placeholder becomes the durable record; its
	// timestamp and position in the chat never change.
	caption := fmt.Sprintf(finalizedCaption, report.Title)
	final := false
	if err := repo.FinalizeMessage(ctx, s.DB, optimistic.ID, repo.MessagePatch{
		Text: &caption,
		Images: domain.ImageRefs{{
			URI:    assetURL,
			Width:  in.Width,
			Height: in.Height,
		}},
		Optimistic: &final,
	}); err != nil {
		s.rollback(ctx, optimistic.ID)
		pipelineRuns.WithLabelValues("rolled_back").Inc()
		return nil, fmt.Errorf("%w: finalize message: %v", ErrPersistence, err)
	}
	finalized, err := repo.GetMessage(ctx, s.DB, optimistic.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload finalized message: %v", ErrPersistence, err)
	}

	if in.IdempotencyKey != "" {
		if _, err := repo.CreateIdempotency(ctx, s.DB, in.UserID, in.ChatID, in.IdempotencyKey,
			finalized.ID, report.ID, s.IdempotencyTTL); err != nil && err != repo.ErrDuplicate {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("record idempotency failed")
		}
	}
	s.publish(ctx, report, created)

	pipelineRuns.WithLabelValues("finalized").Inc()
	return &PipelineResult{
		Message:       finalized,
		Confirmation:  confirmation,
		Report:        report,
		ReportCreated: created,
	}, nil
}

// replay resolves a recorded outcome for the submission key. A record whose
// message or report has since disappeared is treated as absent.
func (s *PipelineService) replay(ctx context.Context, in SubmitImageInput) (*PipelineResult, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, in.UserID, in.ChatID, in.IdempotencyKey, time.Now().UTC())
	if err != nil {
		if err != repo.ErrNotFound {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("idempotency lookup failed")
		}
		return nil, false
	}
	msg, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil, false
	}
	report, err := repo.GetReport(ctx, s.DB, rec.ReportID)
	if err != nil {
		return nil, false
	}
	return &PipelineResult{Message: msg, Report: report, Replayed: true}, true
}

// rollback withdraws the optimistic message. Discard failures are logged and
// swallowed; the run's original error is what the caller sees.
func (s *PipelineService) rollback(ctx context.Context, messageID string) {
	if err := repo.DiscardMessage(context.WithoutCancel(ctx), s.DB, messageID); err != nil && err != repo.ErrNotFound {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("message_id", messageID).
			Msg("rollback: discard optimistic message failed")
	}
}

// publish announces the committed report. Best effort.
func (s *PipelineService) publish(ctx context.Context, r *domain.Report, created bool) {
	if s.Events == nil {
		return
	}
	action := "updated"
	if created {
		action = "created"
	}
	if err := s.Events.ReportCommitted(ctx, r.ID, r.ChatID, action); err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("report_id", r.ID).
			Msg("publish report event failed")
	}
}

// confirmationText renders the AI summary of a committed analysis.
func confirmationText(r *domain.Report, created bool) string {
	verb := confirmationUpdated
	if created {
		verb = confirmationCreated
	}
	return fmt.Sprintf(
		"I've analyzed the image. %s:\n\n- **Item:** %s\n- **Priority:** %s\n- **Description:** %s",
		verb, r.Title, r.Priority, r.Description,
	)
}
