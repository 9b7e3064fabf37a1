package utils

import "errors"

// Error taxonomy for the assignment core. Handlers map these to HTTP
// statuses; the consistency engine propagates store errors unchanged.
var (
	ErrorRecordNotFound = errors.New("record not found")

	// policy denial, never partially applied
	ErrorForbidden = errors.New("forbidden")

	// conflicts
	ErrorAlreadyAssigned     = errors.New("equipment is already assigned to a site")
	ErrorAlreadyOpenHere     = errors.New("equipment already has an open roster entry at this site")
	ErrorAlreadyClosed       = errors.New("roster entry is already closed")
	ErrorEquipmentInUse      = errors.New("equipment is in use")
	ErrorNotAssignable       = errors.New("equipment is under maintenance or out of service")
	ErrorDuplicateIdentifier = errors.New("duplicate identifier")

	// cross-aggregate divergence that survived the bounded retry; safe to
	// retry the whole operation because every step is idempotent for a
	// given target state
	ErrorPartialFailure = errors.New("operation partially applied, please retry")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// IsConflict reports whether err belongs to the Conflict family.
func IsConflict(err error) bool {
	return errors.Is(err, ErrorAlreadyAssigned) ||
		errors.Is(err, ErrorAlreadyOpenHere) ||
		errors.Is(err, ErrorAlreadyClosed) ||
		errors.Is(err, ErrorEquipmentInUse) ||
		errors.Is(err, ErrorNotAssignable) ||
		errors.Is(err, ErrorDuplicateIdentifier)
}
