package invoice

import "errors"

var (
	ErrInvalidContent  = errors.New("invalid invoice content")
	ErrNotFound        = errors.New("invoice not found")
	ErrForbidden       = errors.New("only the issuer may perform this action")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyRevoked  = errors.New("invoice already revoked")

	// ErrDuplicatePublicID is returned by a Store when the public id is taken.
	ErrDuplicatePublicID = errors.New("public id already allocated")
)
