package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gcasillas/clinical-imaging/internal/platform/hl7v2"
)

// Publisher is notified of every stored admission.
type Publisher interface {
	PublishAdmission(ctx context.Context, rec Record) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, rec Record) error

func (f PublisherFunc) PublishAdmission(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// Service runs HL7 ingestion: extract, stamp, upsert, notify, acknowledge.
type Service struct {
	store      Store
	extractor  *Extractor
	clock      *Clock
	publishers []Publisher
	logger     zerolog.Logger
}

// NewService wires a Service over store using the wall clock.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		extractor: NewExtractor(NewIDGenerator(time.Now)),
		clock:     NewClock(time.Now),
		logger:    logger.With().Str("component", "admission").Logger(),
	}
}

// AddPublisher registers p to receive every stored record.
func (s *Service) AddPublisher(p Publisher) { s.publishers = append(s.publishers, p) }

// Ingest stores the admission carried by raw and returns the HL7 ACK that
// answers it. Only input that is not HL7 at all or a failed store write is
// an error; publisher failures are logged.
func (s *Service) Ingest(ctx context.Context, raw []byte) ([]byte, *Record, error) {
	ex, err := s.extractor.Extract(raw)
	if err != nil {
		return nil, nil, err
	}

	rec := ex.Record
	rec.LastUpdated = s.clock.Next()
	if err := s.store.Upsert(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("store admission: %w", err)
	}

	s.logger.Info().
		Str("patient_id", rec.ID).
		Str("control_id", ex.ControlID).
		Str("message_type", ex.Message.Type).
		Msg("admission ingested")

	for _, p := range s.publishers {
		if err := p.PublishAdmission(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", rec.ID).Msg("publish admission failed")
		}
	}

	return hl7v2.BuildACK(ex.ControlID, rec.LastUpdated), &rec, nil
}

// MLLPHandler adapts Ingest to the MLLP transport.
func (s *Service) MLLPHandler() hl7v2.MessageHandler {
	return func(ctx context.Context, raw []byte) ([]byte, error) {
		ack, _, err := s.Ingest(ctx, raw)
		return ack, err
	}
}

// Get returns the record stored under id.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// List returns records newest first with the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return s.store.List(ctx, limit, offset)
}
