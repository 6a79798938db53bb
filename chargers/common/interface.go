package common

type BasicWorker interface {
	Start() error
	Stop() error
}

// Client is the control surface of the charge controller.
type Client interface {
	// StartChargeNow starts an immediate charge session, or updates the
	// rate of the running one.
	StartChargeNow(rateAmps uint8, durationSeconds uint16) error
	// StopCharge cancels the running session. Calling it while no charge
	// is running must be a safe no-op on the controller side.
	StopCharge() error
}
