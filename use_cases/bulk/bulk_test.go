package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra/gateways"
	"github.com/giovaniif/e-commerce/inventory/infra/repositories"
	"github.com/giovaniif/e-commerce/inventory/protocols"
	"github.com/giovaniif/e-commerce/inventory/use_cases/reservation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	productId string
	quantity  int32
}

type mockReserver struct {
	reserved   []call
	released   []call
	reserveErr map[string]error
	releaseErr error
}

func (m *mockReserver) Reserve(_ context.Context, productId string, quantity int32) (stock.Record, error) {
	m.reserved = append(m.reserved, call{productId, quantity})
	if err := m.reserveErr[productId]; err != nil {
		return stock.Record{}, err
	}
	return stock.Record{ProductID: productId, ReservedQuantity: quantity}, nil
}

func (m *mockReserver) ReleaseReservation(_ context.Context, productId string, quantity int32) (stock.Record, error) {
	m.released = append(m.released, call{productId, quantity})
	if m.releaseErr != nil {
		return stock.Record{}, m.releaseErr
	}
	return stock.Record{ProductID: productId}, nil
}

type mockIdempotency struct {
	reserveResult *protocols.IdempotencyKeyResult
	reserveErr    error
	failures      []string
	successes     map[string]json.RawMessage
}

func (m *mockIdempotency) ReserveIdempotencyKey(_ context.Context, key string) (*protocols.IdempotencyKeyResult, error) {
	return m.reserveResult, m.reserveErr
}

func (m *mockIdempotency) MarkFailure(_ context.Context, key string) error {
	m.failures = append(m.failures, key)
	return nil
}

func (m *mockIdempotency) MarkSuccess(_ context.Context, key string, payload json.RawMessage) error {
	if m.successes == nil {
		m.successes = map[string]json.RawMessage{}
	}
	m.successes[key] = payload
	return nil
}

var threeLines = []Line{
	{ProductID: "sku-a", Quantity: 1},
	{ProductID: "sku-b", Quantity: 2},
	{ProductID: "sku-c", Quantity: 3},
}

func TestReserveAllRejectsEmptyRequest(t *testing.T) {
	uc := NewCoordinator(&mockReserver{}, nil, nil)

	_, err := uc.ReserveAll(context.Background(), Input{})
	require.ErrorIs(t, err, stock.ErrValidation)
}

func TestReserveAllRejectsUnknownPolicy(t *testing.T) {
	uc := NewCoordinator(&mockReserver{}, nil, nil)

	_, err := uc.ReserveAll(context.Background(), Input{Lines: threeLines, Policy: "whatever"})
	require.ErrorIs(t, err, stock.ErrValidation)
}

func TestReserveAllBestEffortKeepsEarlierLines(t *testing.T) {
	reserver := &mockReserver{reserveErr: map[string]error{"sku-b": stock.ErrInsufficientStock}}
	uc := NewCoordinator(reserver, nil, nil)

	result, err := uc.ReserveAll(context.Background(), Input{Lines: threeLines})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)

	assert.NoError(t, result.Outcomes[0].Err)
	assert.ErrorIs(t, result.Outcomes[1].Err, stock.ErrInsufficientStock)
	assert.NoError(t, result.Outcomes[2].Err)
	assert.False(t, result.Succeeded())
	assert.Len(t, reserver.reserved, 3, "best effort attempts every line")
	assert.Empty(t, reserver.released, "best effort never releases on its own")
}

func TestReserveAllAllOrNothingRollsBackInReverseOrder(t *testing.T) {
	lines := append(threeLines, Line{ProductID: "sku-d", Quantity: 4})
	reserver := &mockReserver{reserveErr: map[string]error{"sku-c": stock.ErrInsufficientStock}}
	uc := NewCoordinator(reserver, nil, nil)

	result, err := uc.ReserveAll(context.Background(), Input{Lines: lines, Policy: PolicyAllOrNothing})
	require.NoError(t, err)

	assert.ErrorIs(t, result.Outcomes[0].Err, ErrRolledBack)
	assert.ErrorIs(t, result.Outcomes[1].Err, ErrRolledBack)
	assert.ErrorIs(t, result.Outcomes[2].Err, stock.ErrInsufficientStock)
	assert.ErrorIs(t, result.Outcomes[3].Err, ErrNotAttempted)
	assert.Equal(t, []call{{"sku-a", 1}, {"sku-b", 2}, {"sku-c", 3}}, reserver.reserved)
	assert.Equal(t, []call{{"sku-b", 2}, {"sku-a", 1}}, reserver.released)
}

func TestReserveAllAllOrNothingReportsFailedRelease(t *testing.T) {
	releaseErr := errors.New("store down")
	reserver := &mockReserver{
		reserveErr: map[string]error{"sku-b": stock.ErrInsufficientStock},
		releaseErr: releaseErr,
	}
	uc := NewCoordinator(reserver, nil, nil)

	result, err := uc.ReserveAll(context.Background(), Input{Lines: threeLines, Policy: PolicyAllOrNothing})
	require.NoError(t, err)
	assert.ErrorIs(t, result.Outcomes[0].Err, ErrRollbackFailed)
	assert.ErrorIs(t, result.Outcomes[0].Err, releaseErr)
	assert.NotErrorIs(t, result.Outcomes[0].Err, ErrRolledBack)
	assert.False(t, result.Outcomes[0].Reserved())
	assert.True(t, result.Outcomes[0].Holding())
	assert.False(t, result.Outcomes[1].Holding())
}

func TestReserveAllKeepsKeyWhenRollbackFails(t *testing.T) {
	ctx := context.Background()
	reserver := &mockReserver{
		reserveErr: map[string]error{"sku-b": stock.ErrInsufficientStock},
		releaseErr: errors.New("store down"),
	}
	idem := gateways.NewIdempotencyGatewayMemory()
	uc := NewCoordinator(reserver, idem, nil)
	input := Input{IdempotencyKey: "k1", Lines: threeLines, Policy: PolicyAllOrNothing}

	first, err := uc.ReserveAll(ctx, input)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := uc.ReserveAll(ctx, input)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	assert.Equal(t, []call{{"sku-a", 1}, {"sku-b", 2}}, reserver.reserved, "retry must not reserve sku-a twice")
	assert.True(t, second.Outcomes[0].Holding())
	assert.False(t, second.Outcomes[1].Holding())

	reserver.releaseErr = nil
	released := uc.Compensate(ctx, second.Outcomes)
	require.Len(t, released, 1)
	assert.NoError(t, released[0].Err)
	assert.Equal(t, call{"sku-a", 1}, reserver.released[len(reserver.released)-1])
}

func TestCompensateReleasesOnlyReservedLines(t *testing.T) {
	reserver := &mockReserver{}
	uc := NewCoordinator(reserver, nil, nil)

	released := uc.Compensate(context.Background(), []Outcome{
		{ProductID: "sku-a", Quantity: 1},
		{ProductID: "sku-b", Quantity: 2, Err: stock.ErrInsufficientStock},
		{ProductID: "sku-c", Quantity: 3},
	})
	require.Len(t, released, 2)
	assert.Equal(t, []call{{"sku-c", 3}, {"sku-a", 1}}, reserver.released)
}

func TestReserveAllPropagatesInProgressKey(t *testing.T) {
	reserver := &mockReserver{}
	idem := &mockIdempotency{reserveErr: protocols.ErrIdempotencyKeyInProgress}
	uc := NewCoordinator(reserver, idem, nil)

	_, err := uc.ReserveAll(context.Background(), Input{IdempotencyKey: "k1", Lines: threeLines})
	require.ErrorIs(t, err, ErrRequestInProgress)
	assert.Empty(t, reserver.reserved)
}

func TestReserveAllFreesKeyWhenNothingIsHeld(t *testing.T) {
	reserver := &mockReserver{reserveErr: map[string]error{"sku-a": stock.ErrInsufficientStock}}
	idem := &mockIdempotency{}
	uc := NewCoordinator(reserver, idem, nil)

	_, err := uc.ReserveAll(context.Background(), Input{IdempotencyKey: "k1", Lines: threeLines[:1]})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, idem.failures)
	assert.Empty(t, idem.successes)
}

func TestReserveAllReplaysStoredResult(t *testing.T) {
	ctx := context.Background()
	reserver := &mockReserver{reserveErr: map[string]error{"sku-b": stock.ErrInsufficientStock}}
	idem := gateways.NewIdempotencyGatewayMemory()
	uc := NewCoordinator(reserver, idem, nil)

	first, err := uc.ReserveAll(ctx, Input{IdempotencyKey: "k1", Lines: threeLines})
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := uc.ReserveAll(ctx, Input{IdempotencyKey: "k1", Lines: threeLines})
	require.NoError(t, err)
	require.True(t, second.Replayed)
	assert.Len(t, reserver.reserved, 3, "replay must not reserve again")

	require.Len(t, second.Outcomes, 3)
	assert.NoError(t, second.Outcomes[0].Err)
	assert.Equal(t, int32(1), second.Outcomes[0].Record.ReservedQuantity)
	var replayed *ReplayedError
	require.ErrorAs(t, second.Outcomes[1].Err, &replayed)
	assert.Equal(t, first.Outcomes[1].Err.Error(), replayed.Message)
}

func TestReserveAllAgainstCoordinator(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewStockRepositoryMemory(
		stock.Record{ProductID: "sku-a", Quantity: 5, MaximumCapacity: 10},
		stock.Record{ProductID: "sku-b", Quantity: 1, MaximumCapacity: 10},
	)
	uc := NewCoordinator(reservation.NewCoordinator(repo, nil, nil), nil, nil)

	result, err := uc.ReserveAll(ctx, Input{
		Lines:  []Line{{ProductID: "sku-a", Quantity: 3}, {ProductID: "sku-b", Quantity: 2}},
		Policy: PolicyAllOrNothing,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, result.Outcomes[0].Err, ErrRolledBack)
	assert.ErrorIs(t, result.Outcomes[1].Err, stock.ErrInsufficientStock)

	a, err := repo.Get(ctx, "sku-a")
	require.NoError(t, err)
	assert.Equal(t, int32(0), a.ReservedQuantity)
	assert.Equal(t, int32(5), a.Quantity)
}
