package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/events"
	"example.com/kinetic/internal/observability"
)

// IngestHandler feeds synced device files into the ingest service. The
// message value is the raw container; user and file identity travel in
// headers.
type IngestHandler struct {
	service *domain.IngestService
	logger  *log.Logger
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(service *domain.IngestService, logger *log.Logger) *IngestHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[ingest-handler] ", log.LstdFlags)
	}
	return &IngestHandler{service: service, logger: logger}
}

// Handle ingests one file. Malformed files are permanent failures: they are
// logged, counted and dropped so the topic never wedges on a bad upload.
// Store errors return so the message redelivers.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	userID := msg.Header(events.HeaderUserID)
	if userID == "" {
		h.logger.Printf("dropping file message without %s header (offset=%d)", events.HeaderUserID, msg.Offset)
		observability.RecordIngestFailure("missing_user")
		return nil
	}
	filename := msg.Header(events.HeaderFilename)
	meta := domain.ActivityMeta{GearID: msg.Header(events.HeaderGearID)}

	start := time.Now()
	activity, err := h.service.IngestFile(ctx, userID, filename, meta, msg.Value)
	if err != nil {
		var ingErr *domain.IngestionError
		if errors.As(err, &ingErr) {
			h.logger.Printf("unrecoverable file %s for user %s: %v", filename, userID, err)
			observability.RecordIngestFailure("malformed")
			return nil
		}
		if errors.Is(err, domain.ErrReferentialViolation) {
			h.logger.Printf("dropping file %s: %v", filename, err)
			observability.RecordIngestFailure("referential")
			return nil
		}
		observability.RecordIngestFailure("store")
		return fmt.Errorf("ingest %s: %w", filename, err)
	}
	observability.ObserveIngestDuration(time.Since(start))
	h.logger.Printf("ingested %s as activity %s", filename, activity.ID)
	return nil
}

// Recomputer is the slice of the analytics engine the recompute handler
// drives.
type Recomputer interface {
	RecomputePowerCurve(ctx context.Context, userID, sport string) error
	RefreshCriticalPower(ctx context.Context, userID, sport string) error
	UpdateRacePredictions(ctx context.Context, userID string) error
}

// RecomputeHandler reacts to ingested activities by refreshing the user's
// power curve and race predictions.
type RecomputeHandler struct {
	engine Recomputer
	logger *log.Logger
}

// NewRecomputeHandler constructs a RecomputeHandler.
func NewRecomputeHandler(engine Recomputer, logger *log.Logger) *RecomputeHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[recompute-handler] ", log.LstdFlags)
	}
	return &RecomputeHandler{engine: engine, logger: logger}
}

// Handle recomputes derived analytics for the event's user and sport.
func (h *RecomputeHandler) Handle(ctx context.Context, msg Message) error {
	var event events.ActivityIngested
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Printf("dropping undecodable event at offset %d: %v", msg.Offset, err)
		return nil
	}
	if event.UserID == "" || event.SportType == "" {
		h.logger.Printf("dropping event without user or sport (offset=%d)", msg.Offset)
		return nil
	}

	if err := h.engine.RecomputePowerCurve(ctx, event.UserID, event.SportType); err != nil {
		return fmt.Errorf("recompute power curve for user %s: %w", event.UserID, err)
	}
	if err := h.engine.RefreshCriticalPower(ctx, event.UserID, event.SportType); err != nil {
		return fmt.Errorf("refresh critical power for user %s: %w", event.UserID, err)
	}
	if err := h.engine.UpdateRacePredictions(ctx, event.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logger.Printf("no profile for user %s, skipping race predictions", event.UserID)
			return nil
		}
		return fmt.Errorf("update race predictions for user %s: %w", event.UserID, err)
	}
	return nil
}
