package gateways

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/giovaniif/e-commerce/inventory/protocols"
)

const (
	statusProcessing = "processing"
	statusSuccess    = "success"
)

type IdempotencyGatewayMemory struct {
	mutex           sync.RWMutex
	idempotencyKeys map[string]*idempotencyState
}

type idempotencyState struct {
	Status string                          `json:"status"`
	Result *protocols.IdempotencyKeyResult `json:"result,omitempty"`
}

func NewIdempotencyGatewayMemory() *IdempotencyGatewayMemory {
	return &IdempotencyGatewayMemory{
		idempotencyKeys: make(map[string]*idempotencyState),
	}
}

func (g *IdempotencyGatewayMemory) ReserveIdempotencyKey(ctx context.Context, idempotencyKey string) (*protocols.IdempotencyKeyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if state, exists := g.idempotencyKeys[idempotencyKey]; exists {
		switch state.Status {
		case statusSuccess:
			return state.Result, nil
		case statusProcessing:
			return nil, protocols.ErrIdempotencyKeyInProgress
		}
	}

	g.idempotencyKeys[idempotencyKey] = &idempotencyState{Status: statusProcessing}
	return nil, nil
}

func (g *IdempotencyGatewayMemory) MarkFailure(ctx context.Context, idempotencyKey string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	delete(g.idempotencyKeys, idempotencyKey)
	return nil
}

func (g *IdempotencyGatewayMemory) MarkSuccess(ctx context.Context, idempotencyKey string, payload json.RawMessage) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if state, exists := g.idempotencyKeys[idempotencyKey]; exists {
		state.Status = statusSuccess
		state.Result = &protocols.IdempotencyKeyResult{Success: true, Payload: payload}
	}
	return nil
}
