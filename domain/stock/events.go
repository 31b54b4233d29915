package stock

import "time"

type ChangeKind string

const (
	ChangeRestock      ChangeKind = "restock"
	ChangeSale         ChangeKind = "sale"
	ChangeReservation  ChangeKind = "reservation"
	ChangeRelease      ChangeKind = "release"
	ChangeConfirmation ChangeKind = "confirmation"
	ChangeAdjustment   ChangeKind = "adjustment"
)

type OutOfStockEvent struct {
	ProductID             string    `json:"productId"`
	DisplayName           string    `json:"displayName"`
	LastAvailableQuantity int32     `json:"lastAvailableQuantity"`
	WarehouseLocation     string    `json:"warehouseLocation"`
	Timestamp             time.Time `json:"timestamp"`
}

type LowStockEvent struct {
	ProductID         string    `json:"productId"`
	DisplayName       string    `json:"displayName"`
	Quantity          int32     `json:"quantity"`
	MinimumThreshold  int32     `json:"minimumThreshold"`
	WarehouseLocation string    `json:"warehouseLocation"`
	Timestamp         time.Time `json:"timestamp"`
}

type RestockedEvent struct {
	ProductID         string    `json:"productId"`
	DisplayName       string    `json:"displayName"`
	PreviousQuantity  int32     `json:"previousQuantity"`
	NewQuantity       int32     `json:"newQuantity"`
	QuantityAdded     int32     `json:"quantityAdded"`
	WarehouseLocation string    `json:"warehouseLocation"`
	Timestamp         time.Time `json:"timestamp"`
}

type StockChangedEvent struct {
	ProductID         string     `json:"productId"`
	PreviousQuantity  int32      `json:"previousQuantity"`
	NewQuantity       int32      `json:"newQuantity"`
	AvailableQuantity int32      `json:"availableQuantity"`
	ChangeKind        ChangeKind `json:"changeKind"`
	Reason            string     `json:"reason"`
	Timestamp         time.Time  `json:"timestamp"`
}
