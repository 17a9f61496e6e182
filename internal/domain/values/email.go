package values

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// Email represents a validated notification recipient or account address
type Email struct {
	address string
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NewEmail creates a new Email value object with validation
func NewEmail(address string) (Email, error) {
	if strings.TrimSpace(address) == "" {
		return Email{}, fmt.Errorf("email address cannot be empty")
	}

	normalized := strings.TrimSpace(strings.ToLower(address))

	parsed, err := mail.ParseAddress(normalized)
	if err != nil {
		return Email{}, fmt.Errorf("invalid email format: %w", err)
	}

	// mail.ParseAddress accepts display names and quoted locals; recipients must be bare addresses
	if parsed.Address != normalized || !emailRegex.MatchString(parsed.Address) {
		return Email{}, fmt.Errorf("email address does not meet format requirements")
	}

	if len(parsed.Address) > 254 {
		return Email{}, fmt.Errorf("email address too long (max 254 characters)")
	}

	return Email{address: parsed.Address}, nil
}

func (e Email) String() string {
	return e.address
}
