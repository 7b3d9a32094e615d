package ride

// Phase constants for the driver session ride lifecycle.
const (
	PhaseIdle                       = "idle"
	PhaseRequestPending             = "request_pending"
	PhaseNavigatingToPickup         = "navigating_to_pickup"
	PhaseAwaitingPickupConfirmation = "awaiting_pickup_confirmation"
	PhaseNavigatingToDestination    = "navigating_to_destination"
	PhaseArrived                    = "arrived"
	PhaseSettlingPayment            = "settling_payment"
)

var transitions = map[string]map[string]struct{}{
	PhaseIdle: {
		PhaseRequestPending: {},
	},
	PhaseRequestPending: {
		PhaseNavigatingToPickup: {},
		PhaseIdle:               {},
	},
	PhaseNavigatingToPickup: {
		PhaseAwaitingPickupConfirmation: {},
	},
	PhaseAwaitingPickupConfirmation: {
		PhaseNavigatingToDestination: {},
	},
	PhaseNavigatingToDestination: {
		PhaseArrived: {},
	},
	PhaseArrived: {
		PhaseSettlingPayment: {},
	},
	PhaseSettlingPayment: {
		PhaseIdle: {},
	},
}

// CanTransition reports whether the session may move from one phase to the
// other.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}
