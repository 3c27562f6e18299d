package secagg

import "errors"

var (
	ErrIncompleteRound    = errors.New("incomplete round: missing institution updates")
	ErrInvalidInstitution = errors.New("institution id out of range")
	ErrInvalidConfig      = errors.New("invalid secure aggregation configuration")
)
