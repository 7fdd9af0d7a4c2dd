package accounts

// Error codes returned to the presentation layer. Codes are stable;
// messages are human-readable and may change.
const (
	ErrCodeUsernameTaken     = "username_taken"
	ErrCodeUnknownUsername   = "unknown_username"
	ErrCodeIncorrectPassword = "incorrect_password"
	ErrCodeTokenInvalid      = "token_invalid"
	ErrCodeInvalidUsername   = "invalid_username"
	ErrCodeInvalidEmail      = "invalid_email"
	ErrCodeWeakPassword      = "weak_password"
	ErrCodeMissingField      = "missing_field"
	ErrCodeEmailFailed       = "email_failed"
	ErrCodeInternal          = "internal_error"
)

// AuthError is the structured failure every account operation returns.
// Operations never let a backend error cross their boundary: mechanical
// failures are logged and converted to a generic per-operation
// AuthError so internal detail is not leaked to callers.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates an AuthError with the given code, message, and
// optional field hint for form-level display.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}
