// Package service implements the reservation, invoice and note use cases.
// Every mutation goes through the store engine, which fires the lifecycle
// hooks the audit recorder listens on.
package service

import (
	"context"
	"errors"
	"log/slog"

	"warden/internal/platform/metrics"
	"warden/internal/records/models"
	"warden/internal/records/store"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit/recorder"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

// TxRunner scopes a unit of work. The postgres runner exposes the SQL
// transaction through the context so the audit store joins it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Service struct {
	engine  *store.Engine
	tx      TxRunner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(engine *store.Engine, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		tx:     noTx{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateReservation(ctx context.Context, req models.ReservationRequest) (*models.Reservation, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res := &models.Reservation{
		Guest:   req.Guest,
		Room:    req.Room,
		CheckIn: req.CheckIn.UTC(),
		Nights:  req.Nights,
	}
	if identity, ok := requestcontext.Identity(ctx); ok {
		res.CreatedBy = identity.Subject
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.engine.Reservations.Insert(ctx, res)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create reservation")
	}
	s.metrics.IncrementMutations("Reservation", "CREATE")
	return res, nil
}

// UpdateReservation replaces the mutable fields of a reservation. The stored
// state is attached as pre-image so the audit trail carries both sides.
func (s *Service) UpdateReservation(ctx context.Context, id int64, req models.ReservationRequest) (*models.Reservation, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Reservation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.engine.Reservations.Get(ctx, id)
		if err != nil {
			return err
		}
		next := *existing
		next.Guest = req.Guest
		next.Room = req.Room
		next.CheckIn = req.CheckIn.UTC()
		next.Nights = req.Nights

		if err := s.engine.Reservations.Update(recorder.WithPreviousState(ctx, existing), &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, translate(err, "reservation")
	}
	s.metrics.IncrementMutations("Reservation", "UPDATE")
	return updated, nil
}

func (s *Service) DeleteReservation(ctx context.Context, id int64) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.engine.Reservations.Delete(ctx, id)
		return err
	})
	if err != nil {
		return translate(err, "reservation")
	}
	s.metrics.IncrementMutations("Reservation", "DELETE")
	return nil
}

func (s *Service) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	res, err := s.engine.Reservations.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "reservation")
	}
	return res, nil
}

func (s *Service) ListReservations(ctx context.Context) []*models.Reservation {
	return s.engine.Reservations.List(ctx)
}

func (s *Service) CreateInvoice(ctx context.Context, req models.InvoiceRequest) (*models.Invoice, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv := &models.Invoice{
		ReservationID: req.ReservationID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		IssuedAt:      requestcontext.Now(ctx).UTC(),
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.engine.Reservations.Get(ctx, req.ReservationID); err != nil {
			return err
		}
		return s.engine.Invoices.Insert(ctx, inv)
	})
	if err != nil {
		return nil, translate(err, "reservation")
	}
	s.metrics.IncrementMutations("Invoice", "CREATE")
	return inv, nil
}

func (s *Service) CreateNote(ctx context.Context, req models.NoteRequest) (*models.Note, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	note := &models.Note{Text: req.Text}
	if identity, ok := requestcontext.Identity(ctx); ok {
		note.Author = identity.Subject
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.engine.Notes.Insert(ctx, note)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create note")
	}
	s.metrics.IncrementMutations("Note", "CREATE")
	return note, nil
}

func translate(err error, what string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update "+what)
	}
}
