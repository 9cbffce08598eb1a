package content

import (
	"errors"
	"fmt"
	"html"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"boltalka/internal/models"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxMessageLength = 1000
	minNickname      = 3
	maxNickname      = 30
	minPassword      = 6
)

var (
	ErrEmptyMessage   = errors.New("message text is required")
	ErrMessageTooLong = fmt.Errorf("message text exceeds %d characters", MaxMessageLength)

	policy        = bluemonday.StrictPolicy()
	nicknameRegex = regexp.MustCompile(`^[\p{L}\p{N}._-]+$`)
)

// Sanitize strips all markup and returns plain text. Entities are decoded,
// so the result is not safe to insert into HTML unescaped.
func Sanitize(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}

// MessageText checks the length of the trimmed raw message, then strips
// markup. The limit applies to what the user typed.
func MessageText(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(raw) > MaxMessageLength {
		return "", ErrMessageTooLong
	}

	text := strings.TrimSpace(Sanitize(raw))
	if text == "" {
		return "", ErrEmptyMessage
	}
	return text, nil
}

// ValidateNickname checks length and that the nickname contains only
// letters, digits, dot, dash and underscore.
func ValidateNickname(nickname string) error {
	n := utf8.RuneCountInString(nickname)
	if n < minNickname || n > maxNickname {
		return fmt.Errorf("nickname must be between %d and %d characters", minNickname, maxNickname)
	}
	if !nicknameRegex.MatchString(nickname) {
		return errors.New("nickname contains invalid characters (allowed: letters, digits, dot, dash, underscore)")
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPassword {
		return fmt.Errorf("password must be at least %d characters", minPassword)
	}
	return nil
}

// NormalizeEmail lower-cases an optional email and checks its syntax.
// An empty email is allowed.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.New("invalid email address")
	}
	return email, nil
}

func ValidateMessageColor(color string) error {
	if !slices.Contains(models.MessageColors, color) {
		return fmt.Errorf("unknown message color %q", color)
	}
	return nil
}

func ValidateGender(gender models.Gender) error {
	switch gender {
	case models.GenderMale, models.GenderFemale, models.GenderUnknown:
		return nil
	}
	return fmt.Errorf("unknown gender %q", gender)
}
