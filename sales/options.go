package sales

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options carries the dependencies shared by the engine's services.
type Options struct {
	Store     TxStore
	Logger    logrus.FieldLogger
	Contracts ContractChecker
	Clock     Clock
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Contracts == nil {
		o.Contracts = NoContracts{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// ContractChecker reports whether a signed contract exists for a reservation.
// Contracts are tracked outside the engine.
type ContractChecker interface {
	HasSignedContract(ctx context.Context, id ReservationID) (bool, error)
}

// NoContracts is the ContractChecker used when no contract system is wired.
type NoContracts struct{}

func (NoContracts) HasSignedContract(context.Context, ReservationID) (bool, error) {
	return false, nil
}

// =============================================================================
// TRACING
// =============================================================================

var tracer = otel.Tracer("github.com/warp/reservation-engine/sales")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
