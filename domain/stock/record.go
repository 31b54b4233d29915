package stock

import (
	"strings"
	"time"
)

// Record is the inventory state of one product at one storage location.
// Mutators validate everything before touching a field, so a failed call
// leaves the record exactly as it was.
type Record struct {
	ProductID         string    `json:"productId"`
	Quantity          int32     `json:"quantity"`
	ReservedQuantity  int32     `json:"reservedQuantity"`
	MinimumThreshold  int32     `json:"minimumThreshold"`
	MaximumCapacity   int32     `json:"maximumCapacity"`
	WarehouseLocation string    `json:"warehouseLocation"`
	LastRestockAt     time.Time `json:"lastRestockAt"`
	LastSaleAt        time.Time `json:"lastSaleAt"`
	// Version is the compare-on-write token maintained by the Repository.
	Version int64 `json:"version"`
}

type NewRecordInput struct {
	ProductID         string `json:"productId"`
	Quantity          int32  `json:"quantity"`
	MinimumThreshold  int32  `json:"minimumThreshold"`
	MaximumCapacity   int32  `json:"maximumCapacity"`
	WarehouseLocation string `json:"warehouseLocation"`
}

func NewRecord(input NewRecordInput) (Record, error) {
	if strings.TrimSpace(input.ProductID) == "" {
		return Record{}, NewValidationError("productId", "must not be empty")
	}
	record := Record{
		ProductID:         input.ProductID,
		Quantity:          input.Quantity,
		MinimumThreshold:  input.MinimumThreshold,
		MaximumCapacity:   input.MaximumCapacity,
		WarehouseLocation: input.WarehouseLocation,
	}
	if err := record.Validate(); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Validate checks every counter invariant.
func (r Record) Validate() error {
	if r.MaximumCapacity <= 0 {
		return NewValidationError("maximumCapacity", "must be positive")
	}
	if r.MinimumThreshold < 0 {
		return NewValidationError("minimumThreshold", "must not be negative")
	}
	if r.MinimumThreshold > r.MaximumCapacity {
		return NewValidationError("minimumThreshold", "must not exceed maximum capacity")
	}
	if r.Quantity < 0 {
		return NewValidationError("quantity", "must not be negative")
	}
	if r.Quantity > r.MaximumCapacity {
		return NewValidationError("quantity", "must not exceed maximum capacity")
	}
	if r.ReservedQuantity < 0 {
		return NewValidationError("reservedQuantity", "must not be negative")
	}
	if r.ReservedQuantity > r.Quantity {
		return NewValidationError("reservedQuantity", "must not exceed quantity")
	}
	return nil
}

func (r Record) AvailableQuantity() int32 {
	return r.Quantity - r.ReservedQuantity
}

func (r Record) HasAvailable(quantity int32) bool {
	return quantity >= 0 && r.AvailableQuantity() >= quantity
}

func (r Record) IsLowStock() bool {
	return r.Quantity <= r.MinimumThreshold
}

func (r Record) IsOutOfStock() bool {
	return r.Quantity == 0
}

// UtilizationPercentage is the share of MaximumCapacity currently filled.
func (r Record) UtilizationPercentage() float64 {
	if r.MaximumCapacity <= 0 {
		return 0
	}
	return float64(r.Quantity) / float64(r.MaximumCapacity) * 100
}

func (r *Record) Reserve(quantity int32) error {
	if err := requirePositive(quantity); err != nil {
		return err
	}
	if !r.HasAvailable(quantity) {
		return &InsufficientStockError{ProductID: r.ProductID, Requested: quantity, Available: r.AvailableQuantity()}
	}
	r.ReservedQuantity += quantity
	return nil
}

func (r *Record) Release(quantity int32) error {
	if err := requirePositive(quantity); err != nil {
		return err
	}
	if r.ReservedQuantity < quantity {
		return &ReservationExceededError{ProductID: r.ProductID, Requested: quantity, Reserved: r.ReservedQuantity}
	}
	r.ReservedQuantity -= quantity
	return nil
}

// Confirm turns reserved units into a completed sale.
func (r *Record) Confirm(quantity int32, at time.Time) error {
	if err := requirePositive(quantity); err != nil {
		return err
	}
	if r.ReservedQuantity < quantity {
		return &ReservationExceededError{ProductID: r.ProductID, Requested: quantity, Reserved: r.ReservedQuantity}
	}
	r.ReservedQuantity -= quantity
	r.Quantity -= quantity
	r.LastSaleAt = at
	return nil
}

func (r *Record) Restock(quantity int32, at time.Time) error {
	if err := requirePositive(quantity); err != nil {
		return err
	}
	if int64(r.Quantity)+int64(quantity) > int64(r.MaximumCapacity) {
		return &CapacityExceededError{ProductID: r.ProductID, Requested: quantity, Quantity: r.Quantity, Capacity: r.MaximumCapacity}
	}
	r.Quantity += quantity
	r.LastRestockAt = at
	return nil
}

// Reduce is a sale without a prior reservation. Only unreserved units can go.
func (r *Record) Reduce(quantity int32, at time.Time) error {
	if err := requirePositive(quantity); err != nil {
		return err
	}
	if !r.HasAvailable(quantity) {
		return &InsufficientStockError{ProductID: r.ProductID, Requested: quantity, Available: r.AvailableQuantity()}
	}
	r.Quantity -= quantity
	r.LastSaleAt = at
	return nil
}

func (r *Record) SetThresholds(minimum, maximum int32) error {
	candidate := *r
	candidate.MinimumThreshold = minimum
	candidate.MaximumCapacity = maximum
	if err := candidate.Validate(); err != nil {
		return err
	}
	r.MinimumThreshold = minimum
	r.MaximumCapacity = maximum
	return nil
}

func (r *Record) Relocate(location string) error {
	if strings.TrimSpace(location) == "" {
		return NewValidationError("warehouseLocation", "must not be empty")
	}
	r.WarehouseLocation = location
	return nil
}

func requirePositive(quantity int32) error {
	if quantity <= 0 {
		return NewValidationError("quantity", "must be positive")
	}
	return nil
}
