package core

// Error codes for domain errors. These are the wire contract: clients switch
// on the code, never on message text.
const (
	ErrCodeValidation         = "validation_error"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodePasswordRequired   = "password_required"
	ErrCodeIncorrectPassword  = "incorrect_password"
	ErrCodeRoomFull           = "room_full"
	ErrCodeAlreadyJoined      = "already_joined"
	ErrCodeNotInRoom          = "not_in_room"
	ErrCodeConnection         = "connection_error"
	ErrCodeSubscriberOverflow = "subscriber_overflow"
	ErrCodeBadRequest         = "bad_request"
)

// DomainError wraps a code and human-readable message.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

var (
	ErrRoomNotFound      = &DomainError{Code: ErrCodeRoomNotFound, Message: "room not found"}
	ErrPasswordRequired  = &DomainError{Code: ErrCodePasswordRequired, Message: "password required"}
	ErrIncorrectPassword = &DomainError{Code: ErrCodeIncorrectPassword, Message: "incorrect password"}
	ErrRoomFull          = &DomainError{Code: ErrCodeRoomFull, Message: "room is full"}
	ErrAlreadyJoined     = &DomainError{Code: ErrCodeAlreadyJoined, Message: "already joined a room"}
	ErrNotInRoom         = &DomainError{Code: ErrCodeNotInRoom, Message: "not in a room"}
)

// NewValidationError builds a field-level validation failure.
func NewValidationError(msg string) *DomainError {
	return &DomainError{Code: ErrCodeValidation, Message: msg}
}

// NewConnectionError wraps a failure to reach an external collaborator.
func NewConnectionError(msg string) *DomainError {
	return &DomainError{Code: ErrCodeConnection, Message: msg}
}

// IsDenial reports whether err is one of the typed negotiation outcomes the
// caller is expected to surface to the user, as opposed to an internal fault.
func IsDenial(err error) bool {
	de, ok := err.(*DomainError)
	if !ok {
		return false
	}
	switch de.Code {
	case ErrCodeRoomNotFound, ErrCodePasswordRequired, ErrCodeIncorrectPassword,
		ErrCodeRoomFull, ErrCodeValidation:
		return true
	default:
		return false
	}
}
