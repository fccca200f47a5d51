package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// Display name bounds, in runes.
const (
	MinNameRunes = 2
	MaxNameRunes = 24
)

var (
	ErrNameLength  = &domain.Error{Kind: domain.KindValidation, Op: "identity.name", Msg: "display name must be 2 to 24 characters"}
	ErrNameCharset = &domain.Error{Kind: domain.KindValidation, Op: "identity.name", Msg: "display name may contain letters, digits, spaces and _ - . only"}
	ErrNameTaken   = &domain.Error{Kind: domain.KindValidation, Op: "identity.name", Msg: "display name is taken"}
)

// NormalizeName validates a raw display name. It returns the name as it will
// be shown and the case-folded key it is reserved under.
func NormalizeName(raw string) (display, key string, err error) {
	s := norm.NFC.String(raw)
	s = strings.Join(strings.Fields(s), " ")
	n := utf8.RuneCountInString(s)
	if n < MinNameRunes || n > MaxNameRunes {
		return "", "", ErrNameLength
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
		case r == ' ', r == '_', r == '-', r == '.':
		default:
			return "", "", ErrNameCharset
		}
	}
	// Casers are stateful; one per call.
	return s, cases.Fold().String(s), nil
}
