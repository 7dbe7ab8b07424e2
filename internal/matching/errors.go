package matching

import "errors"

var (
	// ErrDuplicateConnection is returned by Connect for an id that is already live.
	ErrDuplicateConnection = errors.New("matching: duplicate connection")

	// ErrInconsistentPairing means a partner does not point back at the
	// participant. It indicates a locking bug and is never repaired.
	ErrInconsistentPairing = errors.New("matching: inconsistent pairing")
)
