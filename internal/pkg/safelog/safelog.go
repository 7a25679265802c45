// Package safelog masks secrets and personal data before they reach the log.
// Link tokens and credentials are masked in every mode; emails only in prod.
package safelog

import (
	"fmt"
	"log"
	"regexp"
	"sync/atomic"
)

var production atomic.Bool

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.=]+`)
	jwtRegex    = regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)
)

// SetProduction switches email masking on or off.
func SetProduction(on bool) {
	production.Store(on)
}

// MaskToken keeps a short prefix of an opaque token.
func MaskToken(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "..."
}

// MaskEmail hides the local part of an address in production.
func MaskEmail(email string) string {
	if !production.Load() {
		return email
	}
	return "***@***.***"
}

// MaskString scrubs bearer credentials, JWTs and (in production) emails.
func MaskString(input string) string {
	result := bearerRegex.ReplaceAllString(input, "Bearer ***")
	result = jwtRegex.ReplaceAllString(result, "eyJ***")
	if production.Load() {
		result = emailRegex.ReplaceAllString(result, "***@***.***")
	}
	return result
}

// Printf logs a masked message.
func Printf(format string, args ...interface{}) {
	log.Print(MaskString(fmt.Sprintf(format, args...)))
}
