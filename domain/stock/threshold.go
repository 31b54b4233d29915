package stock

type CrossingKind string

const (
	CrossingOutOfStock CrossingKind = "out_of_stock"
	CrossingLowStock   CrossingKind = "low_stock"
	CrossingRestocked  CrossingKind = "restocked"
)

// Crossing is a transition from outside to inside a threshold condition.
type Crossing struct {
	Kind     CrossingKind
	Previous Record
	Current  Record
}

// DetectCrossings compares two consecutive states of the same record and
// returns the boundaries that were crossed. Staying inside a state yields
// nothing, so repeated operations at zero or below the minimum stay silent.
func DetectCrossings(previous, current Record) []Crossing {
	var crossings []Crossing
	if previous.Quantity > 0 && current.Quantity == 0 {
		crossings = append(crossings, Crossing{Kind: CrossingOutOfStock, Previous: previous, Current: current})
	}
	if previous.Quantity > previous.MinimumThreshold && current.Quantity <= current.MinimumThreshold {
		crossings = append(crossings, Crossing{Kind: CrossingLowStock, Previous: previous, Current: current})
	}
	if previous.Quantity == 0 && current.Quantity > 0 {
		crossings = append(crossings, Crossing{Kind: CrossingRestocked, Previous: previous, Current: current})
	}
	return crossings
}
