package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra/tracing"
	"github.com/giovaniif/e-commerce/inventory/protocols"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Policy string

const (
	// PolicyBestEffort attempts every line and leaves compensation to the caller.
	PolicyBestEffort Policy = "best_effort"
	// PolicyAllOrNothing stops at the first failure and releases what it already reserved.
	PolicyAllOrNothing Policy = "all_or_nothing"
)

var (
	ErrRolledBack        = errors.New("reservation rolled back after a later line failed")
	ErrRollbackFailed    = errors.New("rollback release failed, reservation still held")
	ErrNotAttempted      = errors.New("line not attempted after an earlier line failed")
	ErrRequestInProgress = protocols.ErrIdempotencyKeyInProgress
)

type Reserver interface {
	Reserve(ctx context.Context, productId string, quantity int32) (stock.Record, error)
	ReleaseReservation(ctx context.Context, productId string, quantity int32) (stock.Record, error)
}

type Line struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
}

type Outcome struct {
	ProductID string
	Quantity  int32
	Record    stock.Record
	Err       error
}

func (o Outcome) Reserved() bool { return o.Err == nil }

// Holding reports whether the line still holds stock: it was reserved, or
// its rollback release failed and the units are still set aside.
func (o Outcome) Holding() bool {
	if o.Err == nil || errors.Is(o.Err, ErrRollbackFailed) {
		return true
	}
	var replayed *ReplayedError
	return errors.As(o.Err, &replayed) && replayed.Held
}

type Input struct {
	IdempotencyKey string
	Lines          []Line
	Policy         Policy
}

type Result struct {
	Outcomes []Outcome
	// Replayed is set when the outcomes come from an earlier run with the same key.
	Replayed bool
}

func (r Result) Succeeded() bool {
	for _, o := range r.Outcomes {
		if !o.Reserved() {
			return false
		}
	}
	return len(r.Outcomes) > 0
}

// ReplayedError stands in for a line error recorded by an earlier run.
type ReplayedError struct {
	Message string
	Held    bool
}

func (e *ReplayedError) Error() string { return e.Message }

type Coordinator struct {
	reserver    Reserver
	idempotency protocols.IdempotencyGateway
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewCoordinator builds a bulk coordinator. idempotency may be nil, in which
// case idempotency keys are ignored.
func NewCoordinator(reserver Reserver, idempotency protocols.IdempotencyGateway, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		reserver:    reserver,
		idempotency: idempotency,
		logger:      logger,
		tracer:      tracing.Tracer(),
	}
}

// ReserveAll reserves every line in list order for one customer action.
func (c *Coordinator) ReserveAll(ctx context.Context, input Input) (Result, error) {
	if len(input.Lines) == 0 {
		return Result{}, stock.NewValidationError("lines", "must not be empty")
	}
	policy := input.Policy
	switch policy {
	case "":
		policy = PolicyBestEffort
	case PolicyBestEffort, PolicyAllOrNothing:
	default:
		return Result{}, stock.NewValidationError("policy", fmt.Sprintf("unknown policy %q", policy))
	}

	ctx, span := c.tracer.Start(ctx, "stock.bulk_reserve", trace.WithAttributes(
		attribute.Int("bulk.lines", len(input.Lines)),
		attribute.String("bulk.policy", string(policy)),
	))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	key := input.IdempotencyKey
	if key == "" || c.idempotency == nil {
		return Result{Outcomes: c.reserveLines(ctx, input.Lines, policy)}, nil
	}

	stored, err := c.idempotency.ReserveIdempotencyKey(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if stored != nil {
		var result Result
		result, err = decodeResult(stored.Payload)
		return result, err
	}

	outcomes := c.reserveLines(ctx, input.Lines, policy)
	result := Result{Outcomes: outcomes}
	c.settleKey(context.WithoutCancel(ctx), key, result)
	return result, nil
}

// settleKey keeps the key only when the run left reservations behind, failed
// rollbacks included, so a retry can never reserve twice; a run that holds
// nothing may be retried.
func (c *Coordinator) settleKey(ctx context.Context, key string, result Result) {
	holdsReservation := false
	for _, o := range result.Outcomes {
		if o.Holding() {
			holdsReservation = true
			break
		}
	}
	if !holdsReservation {
		if err := c.idempotency.MarkFailure(ctx, key); err != nil {
			c.logger.Warn("failed to free idempotency key", zap.String("idempotency_key", key), zap.Error(err))
		}
		return
	}
	payload, err := encodeResult(result)
	if err == nil {
		err = c.idempotency.MarkSuccess(ctx, key, payload)
	}
	if err != nil {
		c.logger.Error("failed to store bulk reservation result", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (c *Coordinator) reserveLines(ctx context.Context, lines []Line, policy Policy) []Outcome {
	outcomes := make([]Outcome, len(lines))
	for i, line := range lines {
		outcomes[i] = Outcome{ProductID: line.ProductID, Quantity: line.Quantity}
	}

	for i, line := range lines {
		record, err := c.reserver.Reserve(ctx, line.ProductID, line.Quantity)
		outcomes[i].Record = record
		outcomes[i].Err = err
		if err == nil {
			continue
		}
		c.logger.Info("bulk reservation line failed",
			zap.Int("line", i),
			zap.String("product_id", line.ProductID),
			zap.Int32("quantity", line.Quantity),
			zap.String("policy", string(policy)),
			zap.Error(err),
		)
		if policy != PolicyAllOrNothing {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			outcomes[j].Err = ErrNotAttempted
		}
		c.rollback(ctx, outcomes[:i])
		break
	}
	return outcomes
}

// rollback releases the reserved outcomes in reverse order and marks them.
func (c *Coordinator) rollback(ctx context.Context, outcomes []Outcome) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if !outcomes[i].Reserved() {
			continue
		}
		released := c.release(ctx, outcomes[i])
		if released.Err != nil {
			outcomes[i].Err = fmt.Errorf("%w: %w", ErrRollbackFailed, released.Err)
			continue
		}
		outcomes[i].Record = released.Record
		outcomes[i].Err = ErrRolledBack
	}
}

// Compensate releases every outcome still holding stock, last line first,
// and reports the result of each release. Callers running best-effort batches
// use it to abort the whole customer action.
func (c *Coordinator) Compensate(ctx context.Context, outcomes []Outcome) []Outcome {
	var released []Outcome
	for i := len(outcomes) - 1; i >= 0; i-- {
		if !outcomes[i].Holding() {
			continue
		}
		released = append(released, c.release(ctx, outcomes[i]))
	}
	return released
}

func (c *Coordinator) release(ctx context.Context, o Outcome) Outcome {
	record, err := c.reserver.ReleaseReservation(ctx, o.ProductID, o.Quantity)
	if err != nil {
		c.logger.Error("compensating release failed",
			zap.String("product_id", o.ProductID),
			zap.Int32("quantity", o.Quantity),
			zap.Error(err),
		)
	}
	return Outcome{ProductID: o.ProductID, Quantity: o.Quantity, Record: record, Err: err}
}

type storedOutcome struct {
	ProductID string        `json:"productId"`
	Quantity  int32         `json:"quantity"`
	Record    *stock.Record `json:"record,omitempty"`
	Error     string        `json:"error,omitempty"`
	Held      bool          `json:"held,omitempty"`
}

func encodeResult(result Result) (json.RawMessage, error) {
	stored := make([]storedOutcome, len(result.Outcomes))
	for i, o := range result.Outcomes {
		stored[i] = storedOutcome{ProductID: o.ProductID, Quantity: o.Quantity}
		if o.Err != nil {
			stored[i].Error = o.Err.Error()
			stored[i].Held = o.Holding()
			continue
		}
		record := o.Record
		stored[i].Record = &record
	}
	return json.Marshal(stored)
}

func decodeResult(payload json.RawMessage) (Result, error) {
	var stored []storedOutcome
	if err := json.Unmarshal(payload, &stored); err != nil {
		return Result{}, fmt.Errorf("decode stored bulk result: %w", err)
	}
	outcomes := make([]Outcome, len(stored))
	for i, s := range stored {
		outcomes[i] = Outcome{ProductID: s.ProductID, Quantity: s.Quantity}
		if s.Record != nil {
			outcomes[i].Record = *s.Record
		}
		if s.Error != "" {
			outcomes[i].Err = &ReplayedError{Message: s.Error, Held: s.Held}
		}
	}
	return Result{Outcomes: outcomes, Replayed: true}, nil
}
