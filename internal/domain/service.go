package domain

import (
	"context"
	"errors"
	"log"
	"time"
)

// Normalizer turns raw container bytes into a storable bundle.
type Normalizer interface {
	Normalize(userID string, source []byte) (*ActivityBundle, error)
}

// ActivityMeta carries caller-supplied fields that do not live in the
// source file.
type ActivityMeta struct {
	Name              string
	Description       string
	GearID            string
	PerceivedExertion int
	CarbsIngested     float64
}

// IngestOption configures optional IngestService behaviour.
type IngestOption func(*IngestService)

// WithIngestTimeout bounds a single file ingestion.
func WithIngestTimeout(d time.Duration) IngestOption {
	return func(s *IngestService) {
		s.timeout = d
	}
}

// WithIngestLogger overrides the logger.
func WithIngestLogger(logger *log.Logger) IngestOption {
	return func(s *IngestService) {
		s.logger = logger
	}
}

// IngestService runs the write path: normalize a source file and commit the
// resulting bundle atomically. Re-ingesting an identical file is an
// idempotent replace, never a duplicate.
type IngestService struct {
	store      Store
	normalizer Normalizer
	timeout    time.Duration
	logger     *log.Logger
}

// NewIngestService constructs an IngestService.
func NewIngestService(store Store, normalizer Normalizer, opts ...IngestOption) *IngestService {
	s := &IngestService{
		store:      store,
		normalizer: normalizer,
		timeout:    30 * time.Second,
		logger:     log.New(log.Writer(), "[ingest] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestFile decodes, normalizes and persists one activity file. On any
// decode or normalization failure it returns an *IngestionError naming the
// source; nothing is committed.
func (s *IngestService) IngestFile(ctx context.Context, userID, filename string, meta ActivityMeta, data []byte) (*Activity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bundle, err := s.normalizer.Normalize(userID, data)
	if err != nil {
		var ingErr *IngestionError
		if errors.As(err, &ingErr) {
			ingErr.Source = filename
			return nil, ingErr
		}
		return nil, &IngestionError{Source: filename, Err: err}
	}

	applyMeta(&bundle.Activity, meta)

	if err := s.store.UpsertActivity(ctx, *bundle); err != nil {
		return nil, err
	}

	s.logger.Printf("ingested activity %s (%s, %d laps, %d samples)",
		bundle.Activity.ID, bundle.Activity.SportType, len(bundle.Laps), len(bundle.Streams))
	return &bundle.Activity, nil
}

func applyMeta(activity *Activity, meta ActivityMeta) {
	if meta.Name != "" {
		activity.Name = meta.Name
	}
	if meta.Description != "" {
		activity.Description = meta.Description
	}
	if meta.GearID != "" {
		activity.GearID = meta.GearID
	}
	if meta.PerceivedExertion != 0 {
		activity.PerceivedExertion = meta.PerceivedExertion
	}
	if meta.CarbsIngested != 0 {
		activity.CarbsIngested = meta.CarbsIngested
	}
}
