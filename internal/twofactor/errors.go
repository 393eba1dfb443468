package twofactor

import "fmt"

// Kind ordnet einen Fehler einer Antwortklasse zu; die Handler übersetzen ihn in einen HTTP-Status.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindValidation
	KindNotFound
	KindConflict
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

// Öffentliche Fehlermeldungen. Sie landen unverändert im {error}-Feld der Antwort.
const (
	MsgUnauthorized            = "Unauthorized"
	MsgProfileNotFound         = "Security profile not found"
	MsgNotEnabled              = "2FA not enabled"
	MsgAlreadyEnabled          = "2FA is already enabled"
	MsgInvalidVerificationCode = "Invalid verification code"
	MsgInvalidSecretFormat     = "Invalid secret format"
	MsgInvalidPassword         = "Invalid password"
	MsgInvalidRecoveryCode     = "Invalid recovery code"
	MsgRecoveryCodeExpired     = "Recovery code has expired"
	MsgTokenRequired           = "Token is required"
	MsgTokenAndSecretRequired  = "Token and secret are required"
	MsgPasswordRequired        = "Password is required"
	MsgEmailRequired           = "Email is required"
	MsgRecoveryFieldsRequired  = "Email and recovery code are required"
	MsgSetupFailed             = "Failed to set up 2FA"
	MsgInternal                = "Internal server error"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
