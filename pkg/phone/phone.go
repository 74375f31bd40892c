package phone

import (
	"errors"
	"strings"
)

const (
	CountryCode = "233"

	subscriberLength    = 9
	localLength         = subscriberLength + 1
	internationalLength = subscriberLength + len(CountryCode)
)

var (
	ErrInvalidNumber = errors.New("invalid phone number")
)

// Normalize returns the international form (233XXXXXXXXX) of a Ghanaian
// number given in local (0XXXXXXXXX), subscriber (XXXXXXXXX) or
// international form.
func Normalize(raw string) (string, error) {
	digits, ok := clean(raw)
	if !ok {
		return "", ErrInvalidNumber
	}
	switch {
	case len(digits) == localLength && digits[0] == '0':
		return CountryCode + digits[1:], nil
	case len(digits) == subscriberLength:
		return CountryCode + digits, nil
	case len(digits) == internationalLength && strings.HasPrefix(digits, CountryCode):
		return digits, nil
	}
	return "", ErrInvalidNumber
}

// Local returns the 0XXXXXXXXX form.
func Local(raw string) (string, error) {
	international, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return "0" + international[len(CountryCode):], nil
}

func clean(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
			continue
		default:
			return "", false
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}
