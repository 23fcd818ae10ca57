package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"warden/internal/platform/metrics"
	"warden/internal/records/models"
	"warden/internal/records/store"
	"warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/audit/recorder"
	"warden/pkg/platform/audit/store/memory"
	"warden/pkg/platform/lifecycle"
	"warden/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	trail   *memory.InMemoryStore
	metrics *metrics.Metrics
	svc     *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.trail = memory.NewInMemoryStore()
	hooks := &lifecycle.Hooks{}
	hooks.Register(recorder.New(recorder.WithSink(s.trail)))

	s.metrics = metrics.New()
	s.svc = New(store.NewEngine(hooks), WithMetrics(s.metrics))

	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
	s.ctx = requestcontext.WithIdentity(ctx, domain.Identity{Subject: "alice"})
}

func (s *ServiceSuite) create() *models.Reservation {
	res, err := s.svc.CreateReservation(s.ctx, models.ReservationRequest{Guest: " Ada ", Room: "101", Nights: 2})
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) TestCreateReservation() {
	res := s.create()
	s.Equal(int64(1), res.ID)
	s.Equal("Ada", res.Guest)
	s.Equal("alice", res.CreatedBy)

	trail, err := s.trail.ListByEntity(s.ctx, "Reservation", res.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Equal(audit.OperationCreate, trail[0].Operation)
	s.Equal("alice", trail[0].ActorSubject())
	s.Nil(trail[0].PreviousState)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.RecordsMutated.WithLabelValues("Reservation", "CREATE")))

	s.Run("invalid request is rejected before any hook", func() {
		_, err := s.svc.CreateReservation(s.ctx, models.ReservationRequest{Room: "101", Nights: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(1, s.trail.Len())
	})
}

func (s *ServiceSuite) TestUpdateReservationCarriesPreImage() {
	res := s.create()

	updated, err := s.svc.UpdateReservation(s.ctx, res.ID, models.ReservationRequest{Guest: "Ada", Room: "202", Nights: 3})
	s.Require().NoError(err)
	s.Equal("202", updated.Room)

	trail, err := s.trail.ListByEntity(s.ctx, "Reservation", res.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	upd := trail[1]
	s.Equal(audit.OperationUpdate, upd.Operation)
	s.Contains(string(upd.PreviousState), `"room":"101"`)
	s.Contains(string(upd.NewState), `"room":"202"`)

	s.Run("missing reservation", func() {
		_, err := s.svc.UpdateReservation(s.ctx, 99, models.ReservationRequest{Guest: "x", Room: "1", Nights: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDeleteReservation() {
	res := s.create()
	s.Require().NoError(s.svc.DeleteReservation(s.ctx, res.ID))

	_, err := s.svc.GetReservation(s.ctx, res.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	trail, err := s.trail.ListByEntity(s.ctx, "Reservation", res.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	s.Equal(audit.OperationDelete, trail[1].Operation)
	s.Nil(trail[1].NewState)
	s.Contains(string(trail[1].PreviousState), `"guest":"Ada"`)

	s.True(dErrors.HasCode(s.svc.DeleteReservation(s.ctx, res.ID), dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestCreateInvoice() {
	res := s.create()
	inv, err := s.svc.CreateInvoice(s.ctx, models.InvoiceRequest{ReservationID: res.ID, AmountCents: 25000, Currency: "eur"})
	s.Require().NoError(err)
	s.Equal("EUR", inv.Currency)
	s.Equal(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC), inv.IssuedAt)

	trail, err := s.trail.ListByEntity(s.ctx, "Invoice", inv.ID)
	s.Require().NoError(err)
	s.Len(trail, 1)

	_, err = s.svc.CreateInvoice(s.ctx, models.InvoiceRequest{ReservationID: 42, AmountCents: 1, Currency: "EUR"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestCreateNoteHasNoEntityID() {
	note, err := s.svc.CreateNote(s.ctx, models.NoteRequest{Text: "late check-out"})
	s.Require().NoError(err)
	s.Equal("alice", note.Author)

	recent, err := s.trail.ListRecent(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal("Note", recent[0].EntityType)
	s.Nil(recent[0].EntityID)
}

func (s *ServiceSuite) TestFailingSinkDoesNotBlockMutation() {
	hooks := &lifecycle.Hooks{}
	hooks.Register(recorder.New(recorder.WithSink(audit.SinkFunc(func(context.Context, audit.Record) error {
		return errors.New("sink down")
	}))))
	svc := New(store.NewEngine(hooks))

	res, err := svc.CreateReservation(s.ctx, models.ReservationRequest{Guest: "Ada", Room: "101", Nights: 1})
	s.Require().NoError(err)
	s.Equal(int64(1), res.ID)
}

func (s *ServiceSuite) TestAlwaysFailingSinkNeverBlocksMutations() {
	m := recorder.NewMetrics(prometheus.NewRegistry())
	hooks := &lifecycle.Hooks{}
	hooks.Register(recorder.New(
		recorder.WithMetrics(m),
		recorder.WithSink(audit.SinkFunc(func(context.Context, audit.Record) error {
			return errors.New("sink down")
		})),
	))
	svc := New(store.NewEngine(hooks))

	const n = 1000
	for i := range n {
		_, err := svc.CreateReservation(s.ctx, models.ReservationRequest{Guest: "Ada", Room: fmt.Sprintf("%d", i), Nights: 1})
		s.Require().NoError(err)
	}

	stored := svc.ListReservations(s.ctx)
	s.Len(stored, n)
	s.Equal(int64(n), stored[n-1].ID)
	s.Equal(float64(n), testutil.ToFloat64(m.Faults.WithLabelValues(audit.FaultSinkWriteFailed.String())))
}

type recordingTx struct {
	calls int
}

func (t *recordingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

func (s *ServiceSuite) TestMutationsRunInsideTx() {
	tx := &recordingTx{}
	svc := New(store.NewEngine(nil), WithTxRunner(tx))

	res, err := svc.CreateReservation(s.ctx, models.ReservationRequest{Guest: "Ada", Room: "101", Nights: 1})
	s.Require().NoError(err)
	s.Require().NoError(svc.DeleteReservation(s.ctx, res.ID))
	s.Equal(2, tx.calls)
}
