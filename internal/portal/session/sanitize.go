package session

import (
	"html"
	"regexp"
	"strings"

	"propdesk/internal/core/domain"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	scriptScheme = regexp.MustCompile(`(?i)(java|vb)script\s*:`)
	angleBracket = strings.NewReplacer("<", "", ">", "")
)

// Identity is the allow-listed part of an account kept with a session.
type Identity struct {
	ID           uint   `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	AccountType  string `json:"account_type"`
	Status       string `json:"status"`
	Phone        string `json:"phone,omitempty"`
	PortalActive bool   `json:"portal_active"`
}

// FullName joins first and last name.
func (i Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// Sanitize copies the allow-listed fields of account and strips markup
// from every string.
func Sanitize(account *domain.AccountIdentity) Identity {
	if account == nil {
		return Identity{}
	}
	return Identity{
		ID:           account.ID,
		FirstName:    cleanString(account.FirstName),
		LastName:     cleanString(account.LastName),
		Email:        cleanString(account.Email),
		AccountType:  cleanString(string(account.AccountType)),
		Status:       cleanString(account.Status),
		Phone:        cleanString(account.Phone),
		PortalActive: account.PortalActive,
	}
}

func cleanString(s string) string {
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	s = angleBracket.Replace(s)
	for scriptScheme.MatchString(s) {
		s = scriptScheme.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
