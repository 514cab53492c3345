package auth

import (
	"errors"
	"fmt"

	"github.com/gymflow/server/internal/model"
)

// ErrorKind classifies login failures. The values travel to clients as the
// "code" field of error responses.
type ErrorKind string

const (
	KindAccountNotFound   ErrorKind = "account_not_found"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindLicenseExpired    ErrorKind = "license_expired"
	KindLicenseBlocked    ErrorKind = "license_blocked"
	KindLicenseRevoked    ErrorKind = "license_revoked"
	KindPanelAccessDenied ErrorKind = "panel_access_denied"
	KindIdentityProvider  ErrorKind = "identity_provider_error"
	KindInternal          ErrorKind = "internal_error"
	KindTooManyAttempts   ErrorKind = "too_many_attempts"
	KindSessionInvalid    ErrorKind = "session_invalid"
)

var messages = map[ErrorKind]string{
	KindAccountNotFound:   "Conta não encontrada. Verifique o usuário e a chave de licença.",
	KindInvalidCredential: "Senha incorreta.",
	KindLicenseExpired:    "Sua licença expirou. Entre em contato com a academia para renovar.",
	KindLicenseBlocked:    "Sua licença está bloqueada. Entre em contato com o administrador.",
	KindLicenseRevoked:    "A licença desta conta foi removida. Solicite uma nova licença ao administrador.",
	KindPanelAccessDenied: "Acesso negado a este painel.",
	KindIdentityProvider:  "Erro interno. Tente novamente mais tarde.",
	KindInternal:          "Erro interno. Tente novamente mais tarde.",
	KindTooManyAttempts:   "Muitas tentativas de login. Aguarde alguns minutos e tente novamente.",
	KindSessionInvalid:    "Sessão encerrada. Faça login novamente.",
}

// Error is a user-facing authentication failure. Message is safe to show;
// Err carries the internal cause for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	License *model.License
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrLicenseExpired) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Credential reports whether the failure is a wrong username or password, the
// only failures that count towards lockouts.
func (e *Error) Credential() bool {
	return e.Kind == KindAccountNotFound || e.Kind == KindInvalidCredential
}

// Sentinels for errors.Is
var (
	ErrAccountNotFound   = &Error{Kind: KindAccountNotFound}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential}
	ErrLicenseExpired    = &Error{Kind: KindLicenseExpired}
	ErrLicenseBlocked    = &Error{Kind: KindLicenseBlocked}
	ErrLicenseRevoked    = &Error{Kind: KindLicenseRevoked}
	ErrPanelAccessDenied = &Error{Kind: KindPanelAccessDenied}
	ErrIdentityProvider  = &Error{Kind: KindIdentityProvider}
	ErrInternal          = &Error{Kind: KindInternal}
	ErrTooManyAttempts   = &Error{Kind: KindTooManyAttempts}
	ErrSessionInvalid    = &Error{Kind: KindSessionInvalid}
)

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Message: messages[kind], Err: cause}
}

func licenseError(kind ErrorKind, lic model.License) *Error {
	e := newError(kind, nil)
	e.License = &lic
	return e
}

func internalError(op string, err error) *Error {
	return newError(KindInternal, fmt.Errorf("%s: %w", op, err))
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
