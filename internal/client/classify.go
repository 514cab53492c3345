package client

import (
	"net/http"
	"strings"
)

// Category is how the client presents a failed login
type Category string

const (
	CategoryPasswordWrong   Category = "password_wrong"
	CategoryUserNotFound    Category = "user_not_found"
	CategoryLicenseExpired  Category = "license_expired"
	CategoryLicenseBlocked  Category = "license_blocked"
	CategoryLicenseRevoked  Category = "license_revoked"
	CategoryPanelDenied     Category = "panel_denied"
	CategoryTooManyAttempts Category = "too_many_attempts"
	CategoryServer          Category = "server"
	CategoryNetwork         Category = "network"
)

var codeCategories = map[string]Category{
	"invalid_credential":      CategoryPasswordWrong,
	"account_not_found":       CategoryUserNotFound,
	"license_expired":         CategoryLicenseExpired,
	"license_blocked":         CategoryLicenseBlocked,
	"license_revoked":         CategoryLicenseRevoked,
	"panel_access_denied":     CategoryPanelDenied,
	"too_many_attempts":       CategoryTooManyAttempts,
	"identity_provider_error": CategoryServer,
	"internal_error":          CategoryServer,
}

// keyword fallback for servers that send no code, checked in order
var messageKeywords = []struct {
	keyword  string
	category Category
}{
	{"muitas tentativas", CategoryTooManyAttempts},
	{"painel", CategoryPanelDenied},
	{"bloquead", CategoryLicenseBlocked},
	{"expir", CategoryLicenseExpired},
	{"removida", CategoryLicenseRevoked},
	{"revogad", CategoryLicenseRevoked},
	{"senha", CategoryPasswordWrong},
	{"não encontrad", CategoryUserNotFound},
	{"nao encontrad", CategoryUserNotFound},
}

// Classify maps a failed response to a Category, by code first and by the
// Portuguese message text otherwise.
func Classify(status int, code, message string) Category {
	if c, ok := codeCategories[code]; ok {
		return c
	}
	lower := strings.ToLower(message)
	for _, k := range messageKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.category
		}
	}
	switch status {
	case http.StatusUnauthorized:
		return CategoryUserNotFound
	case http.StatusTooManyRequests:
		return CategoryTooManyAttempts
	default:
		return CategoryServer
	}
}

// CountsTowardLockout reports whether the failure should advance the device
// lockout. Only wrong credentials do.
func CountsTowardLockout(c Category) bool {
	return c == CategoryPasswordWrong || c == CategoryUserNotFound
}

// FriendlyMessage is the text shown for a category
func FriendlyMessage(c Category) string {
	switch c {
	case CategoryPasswordWrong:
		return "Senha incorreta. Verifique e tente novamente."
	case CategoryUserNotFound:
		return "Usuário não encontrado. Verifique o nome de usuário e a chave de licença."
	case CategoryLicenseExpired:
		return "Sua licença expirou. Procure a academia para renovar."
	case CategoryLicenseBlocked:
		return "Sua licença está bloqueada. Procure o administrador."
	case CategoryLicenseRevoked:
		return "Sua licença foi removida. Solicite uma nova ao administrador."
	case CategoryPanelDenied:
		return "Esta conta não tem acesso a este painel."
	case CategoryTooManyAttempts:
		return "Muitas tentativas. Aguarde alguns minutos."
	case CategoryNetwork:
		return "Sem conexão com o servidor. Verifique sua internet."
	default:
		return "Erro no servidor. Tente novamente mais tarde."
	}
}
