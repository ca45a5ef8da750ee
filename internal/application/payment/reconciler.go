package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apporder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/order"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability/logctx"
)

const (
	paymentService   = "payment-service"
	useCaseReconcile = "payment.reconcile"
	spanPrefix       = "UC."
)

// CallbackOutcome is what the provider callback claims happened.
type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "success"
	OutcomeFailure CallbackOutcome = "failure"
	OutcomePending CallbackOutcome = "pending"
	OutcomeCancel  CallbackOutcome = "cancel"
)

var ErrCaptureMismatch = errors.New("payment: gateway capture did not confirm completion")

type CallbackResult struct {
	PaymentID   string
	Status      domain.Status
	OrderID     string
	OrderNumber string
	Replayed    bool
}

// Reconciler is the saga entry point. It receives gateway callbacks, flips
// payment state exactly once per provider reference and drives order
// materialization for the first successful completion.
type Reconciler struct {
	payments     domain.Repository
	materializer *apporder.Materializer
	gateways     GatewayResolver
	tel          observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewReconciler(
	payments domain.Repository,
	materializer *apporder.Materializer,
	gateways GatewayResolver,
	tel observability.Observability,
) *Reconciler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Reconciler{
		payments:     payments,
		materializer: materializer,
		gateways:     gateways,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", paymentService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// HandleCallback processes one provider callback. Unknown references are a
// NotFound, never a fabricated payment. A duplicate callback for an already
// completed payment is an idempotent no-op, detected before any side effect.
func (r *Reconciler) HandleCallback(ctx context.Context, provider domain.Provider, providerRef string, outcome CallbackOutcome) (_ *CallbackResult, err error) {
	logger := logctx.FromOr(ctx, r.log).With(
		observability.F("use_case", useCaseReconcile),
		observability.F("provider", string(provider)),
		observability.F("provider_ref", providerRef),
		observability.F("callback_outcome", string(outcome)),
	)

	ctx, span := r.tel.Tracer().Start(ctx, spanPrefix+"ReconcilePayment",
		attribute.String("use_case", useCaseReconcile),
		attribute.String("payment.provider", string(provider)),
		attribute.String("payment.outcome", string(outcome)),
	)
	start := time.Now()
	outcomeLabel, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		r.reqCounter.Add(1,
			observability.L("use_case", useCaseReconcile),
			observability.L("outcome", outcomeLabel),
		)
		r.durHistogram.Observe(lat, observability.L("use_case", useCaseReconcile))

		fields := []observability.Field{
			observability.F("outcome", outcomeLabel),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if providerRef == "" {
		outcomeLabel, statusText = "error", "PROVIDER_REF_REQUIRED"
		return nil, errors.New("payment: provider reference is required")
	}

	pay, err := r.payments.FindByProviderRef(ctx, provider, providerRef)
	if err != nil {
		outcomeLabel, statusText = "error", "PAYMENT_NOT_FOUND"
		return nil, err
	}
	logger = logger.With(observability.F("payment_id", pay.ID))

	switch outcome {
	case OutcomeSuccess:
		return r.complete(ctx, logger, pay, &outcomeLabel, &statusText)
	case OutcomeFailure:
		return r.terminal(ctx, pay, pay.Fail, &statusText)
	case OutcomeCancel:
		return r.terminal(ctx, pay, pay.CancelPayment, &statusText)
	case OutcomePending:
		statusText = "STILL_PENDING"
		return &CallbackResult{PaymentID: pay.ID, Status: pay.Status}, nil
	default:
		outcomeLabel, statusText = "error", "OUTCOME_UNKNOWN"
		return nil, fmt.Errorf("payment: unknown callback outcome %q", outcome)
	}
}

func (r *Reconciler) complete(ctx context.Context, logger observability.Logger, pay *domain.Payment, outcomeLabel, statusText *string) (*CallbackResult, error) {
	replayed := false

	switch pay.Status {
	case domain.StatusCompleted:
		// Duplicate callback. The transition already happened; only make
		// sure the order exists (the materializer is a no-op when it does).
		replayed = true
		*statusText = "IDEMPOTENT_REPLAY"
		logger.Info("payment_callback_replay")
	case domain.StatusPending, domain.StatusApproved:
		if r.gateways != nil {
			if gw := r.gateways(pay.Provider); gw != nil {
				captured, capErr := gw.Capture(ctx, pay.ProviderRef)
				if capErr != nil {
					*outcomeLabel, *statusText = "error", "CAPTURE_FAILED"
					return nil, fmt.Errorf("payment: capture %s: %w", pay.ProviderRef, capErr)
				}
				if captured != domain.StatusCompleted && captured != domain.StatusApproved {
					*outcomeLabel, *statusText = "error", "CAPTURE_MISMATCH"
					return nil, ErrCaptureMismatch
				}
			}
		}
		if err := pay.Complete(); err != nil {
			*outcomeLabel, *statusText = "error", "STATE_TRANSITION_FAILED"
			return nil, err
		}
		if err := r.payments.Update(ctx, pay); err != nil {
			*outcomeLabel, *statusText = "error", "PAYMENT_UPDATE_FAILED"
			return nil, fmt.Errorf("payment: persist completion: %w", err)
		}
	default:
		// failed/cancelled payments never complete afterwards.
		*outcomeLabel, *statusText = "error", "PAYMENT_TERMINAL"
		return nil, domain.ErrInvalidStateTransition
	}

	res, err := r.materializer.Materialize(ctx, pay)
	if err != nil {
		// The payment stays completed; a later callback or sweep can retry
		// materialization, which remains idempotent.
		*outcomeLabel, *statusText = "error", "MATERIALIZE_FAILED"
		return nil, err
	}

	return &CallbackResult{
		PaymentID:   pay.ID,
		Status:      pay.Status,
		OrderID:     res.OrderID,
		OrderNumber: res.OrderNumber,
		Replayed:    replayed || res.Replayed,
	}, nil
}

func (r *Reconciler) terminal(ctx context.Context, pay *domain.Payment, transition func() error, statusText *string) (*CallbackResult, error) {
	if pay.Status != domain.StatusPending && pay.Status != domain.StatusApproved {
		// Already terminal; repeated callbacks are no-ops.
		*statusText = "IDEMPOTENT_REPLAY"
		return &CallbackResult{PaymentID: pay.ID, Status: pay.Status, Replayed: true}, nil
	}
	if err := transition(); err != nil {
		*statusText = "STATE_TRANSITION_FAILED"
		return nil, err
	}
	if err := r.payments.Update(ctx, pay); err != nil {
		*statusText = "PAYMENT_UPDATE_FAILED"
		return nil, fmt.Errorf("payment: persist terminal state: %w", err)
	}
	return &CallbackResult{PaymentID: pay.ID, Status: pay.Status}, nil
}
