package privacy

import "errors"

var (
	// ErrInvalidPrivacyConfig indicates differential-privacy parameters
	// outside their valid ranges.
	ErrInvalidPrivacyConfig = errors.New("invalid privacy configuration")

	// ErrInsufficientData indicates an attack evaluation was requested
	// without enough records to probe the model.
	ErrInsufficientData = errors.New("insufficient data for attack evaluation")
)
