package stock

import (
	"errors"
	"testing"
	"time"
)

func newTestRecord(t *testing.T, quantity, minimum, maximum int32) Record {
	t.Helper()
	record, err := NewRecord(NewRecordInput{
		ProductID:         "sku-1",
		Quantity:          quantity,
		MinimumThreshold:  minimum,
		MaximumCapacity:   maximum,
		WarehouseLocation: "A-01",
	})
	if err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
	return record
}

func TestNewRecordRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		input NewRecordInput
		field string
	}{
		{"empty product", NewRecordInput{ProductID: " ", MaximumCapacity: 10}, "productId"},
		{"zero capacity", NewRecordInput{ProductID: "p", MaximumCapacity: 0}, "maximumCapacity"},
		{"negative threshold", NewRecordInput{ProductID: "p", MaximumCapacity: 10, MinimumThreshold: -1}, "minimumThreshold"},
		{"threshold above capacity", NewRecordInput{ProductID: "p", MaximumCapacity: 10, MinimumThreshold: 11}, "minimumThreshold"},
		{"negative quantity", NewRecordInput{ProductID: "p", MaximumCapacity: 10, Quantity: -1}, "quantity"},
		{"quantity above capacity", NewRecordInput{ProductID: "p", MaximumCapacity: 10, Quantity: 11}, "quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRecord(tc.input)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if validationErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, validationErr.Field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected errors.Is(err, ErrValidation)")
			}
		})
	}
}

func TestRecordQueries(t *testing.T) {
	record := newTestRecord(t, 10, 2, 40)
	record.ReservedQuantity = 4

	if record.AvailableQuantity() != 6 {
		t.Errorf("Expected available quantity to be 6, got %d", record.AvailableQuantity())
	}
	if !record.HasAvailable(6) || record.HasAvailable(7) {
		t.Errorf("Expected HasAvailable(6) true and HasAvailable(7) false")
	}
	if record.UtilizationPercentage() != 25 {
		t.Errorf("Expected utilization 25, got %f", record.UtilizationPercentage())
	}
	if record.IsLowStock() || record.IsOutOfStock() {
		t.Errorf("Expected record not to be low or out of stock")
	}

	record.Quantity = 2
	record.ReservedQuantity = 0
	if !record.IsLowStock() {
		t.Errorf("Expected quantity equal to threshold to be low stock")
	}
	record.Quantity = 0
	if !record.IsOutOfStock() || !record.IsLowStock() {
		t.Errorf("Expected empty record to be out of stock and low stock")
	}
}

func TestReserveAndConfirm(t *testing.T) {
	record := newTestRecord(t, 10, 2, 100)
	saleAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := record.Reserve(5); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if record.Quantity != 10 || record.ReservedQuantity != 5 || record.AvailableQuantity() != 5 {
		t.Fatalf("unexpected record after reserve: %+v", record)
	}
	if err := record.Confirm(5, saleAt); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if record.Quantity != 5 || record.ReservedQuantity != 0 {
		t.Fatalf("unexpected record after confirm: %+v", record)
	}
	if !record.LastSaleAt.Equal(saleAt) {
		t.Fatalf("expected last sale %v, got %v", saleAt, record.LastSaleAt)
	}
}

func TestReserveInsufficientLeavesRecordUnchanged(t *testing.T) {
	record := newTestRecord(t, 3, 0, 10)
	before := record

	err := record.Reserve(4)
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Requested != 4 || insufficient.Available != 3 {
		t.Fatalf("unexpected error details: %+v", insufficient)
	}
	if record != before {
		t.Fatalf("expected record unchanged, got %+v", record)
	}
}

func TestReleaseAndConfirmRejectMoreThanReserved(t *testing.T) {
	record := newTestRecord(t, 10, 0, 10)
	record.ReservedQuantity = 2
	before := record

	if err := record.Release(3); !errors.Is(err, ErrReservationExceeded) {
		t.Fatalf("expected ErrReservationExceeded, got %v", err)
	}
	if err := record.Confirm(3, time.Now()); !errors.Is(err, ErrReservationExceeded) {
		t.Fatalf("expected ErrReservationExceeded, got %v", err)
	}
	if record != before {
		t.Fatalf("expected record unchanged, got %+v", record)
	}
}

func TestRestockRespectsCapacity(t *testing.T) {
	record := newTestRecord(t, 8, 0, 10)
	restockAt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	err := record.Restock(3, restockAt)
	var capacity *CapacityExceededError
	if !errors.As(err, &capacity) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}
	if capacity.Capacity != 10 || capacity.Quantity != 8 || capacity.Requested != 3 {
		t.Fatalf("unexpected error details: %+v", capacity)
	}
	if !record.LastRestockAt.IsZero() {
		t.Fatalf("expected restock timestamp untouched on failure")
	}

	if err := record.Restock(2, restockAt); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if record.Quantity != 10 || !record.LastRestockAt.Equal(restockAt) {
		t.Fatalf("unexpected record after restock: %+v", record)
	}
}

func TestReduceOnlyTakesUnreservedUnits(t *testing.T) {
	record := newTestRecord(t, 5, 0, 10)
	record.ReservedQuantity = 3

	if err := record.Reduce(3, time.Now()); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := record.Reduce(2, time.Now()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if record.Quantity != 3 || record.ReservedQuantity != 3 {
		t.Fatalf("unexpected record after reduce: %+v", record)
	}
}

func TestMutatorsRejectNonPositiveQuantities(t *testing.T) {
	record := newTestRecord(t, 5, 0, 10)
	now := time.Now()
	mutators := map[string]func(int32) error{
		"reserve": record.Reserve,
		"release": record.Release,
		"confirm": func(q int32) error { return record.Confirm(q, now) },
		"restock": func(q int32) error { return record.Restock(q, now) },
		"reduce":  func(q int32) error { return record.Reduce(q, now) },
	}
	for name, mutate := range mutators {
		for _, quantity := range []int32{0, -1} {
			if err := mutate(quantity); !errors.Is(err, ErrValidation) {
				t.Fatalf("%s(%d): expected ErrValidation, got %v", name, quantity, err)
			}
		}
	}
}

func TestSetThresholds(t *testing.T) {
	record := newTestRecord(t, 8, 2, 10)

	if err := record.SetThresholds(3, 7); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected capacity below quantity to be rejected, got %v", err)
	}
	if err := record.SetThresholds(12, 11); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected threshold above capacity to be rejected, got %v", err)
	}
	if record.MinimumThreshold != 2 || record.MaximumCapacity != 10 {
		t.Fatalf("expected thresholds unchanged, got %+v", record)
	}
	if err := record.SetThresholds(4, 50); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if record.MinimumThreshold != 4 || record.MaximumCapacity != 50 {
		t.Fatalf("unexpected thresholds: %+v", record)
	}
}

func TestRelocate(t *testing.T) {
	record := newTestRecord(t, 1, 0, 10)
	if err := record.Relocate(""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := record.Relocate("B-07"); err != nil || record.WarehouseLocation != "B-07" {
		t.Fatalf("expected relocation to B-07, got %q (%v)", record.WarehouseLocation, err)
	}
}
