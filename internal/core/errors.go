package core

// Error codes for domain errors.
const (
	ErrCodeValidation        = "validation"
	ErrCodeUserNotFound      = "user_not_found"
	ErrCodeChannelNotFound   = "channel_not_found"
	ErrCodeMemberNotFound    = "member_not_found"
	ErrCodeRecipientNotFound = "recipient_not_found"
	ErrCodeNameTaken         = "name_taken"
	ErrCodeDomainRule        = "domain_rule"
	ErrCodeStorage           = "storage"
)

// Error wraps a code and human-readable message. Every request handler
// recovers it at the boundary and turns it into a failure acknowledgement.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Not-found and conflict errors callers branch on with errors.Is.
var (
	ErrUserNotFound    = &Error{Code: ErrCodeUserNotFound, Message: "User not found"}
	ErrChannelNotFound = &Error{Code: ErrCodeChannelNotFound, Message: "Channel not found"}
	ErrMemberNotFound  = &Error{Code: ErrCodeMemberNotFound, Message: "User not found in channel"}
	ErrNameTaken       = &Error{Code: ErrCodeNameTaken, Message: "Name already taken"}
)

// Validation builds a validation error with the given message.
func Validation(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg}
}

// DomainRule builds a domain-rule violation with the given message.
func DomainRule(msg string) *Error {
	return &Error{Code: ErrCodeDomainRule, Message: msg}
}

// RecipientNotFound builds a recipient lookup failure with the given message.
func RecipientNotFound(msg string) *Error {
	return &Error{Code: ErrCodeRecipientNotFound, Message: msg}
}

// StorageError wraps an opaque storage failure.
func StorageError(err error) *Error {
	return &Error{Code: ErrCodeStorage, Message: err.Error()}
}
