package chat

import (
	"strings"
	"unicode"

	"github.com/careline/careline/internal/apperr"
)

// KeySeparator joins the two participant ids of a conversation key. User ids
// may not contain it.
const KeySeparator = "_"

// ConversationKey returns the order-independent key of the conversation
// between a and b: the ids sorted byte-wise and joined by KeySeparator.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + KeySeparator + b
}

// ValidateUserID rejects ids that cannot take part in a conversation key.
func ValidateUserID(field, id string) error {
	if id == "" {
		return apperr.Validation("%s is required", field)
	}
	if strings.Contains(id, KeySeparator) {
		return apperr.Validation("%s must not contain %q", field, KeySeparator)
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return apperr.Validation("%s must not contain whitespace", field)
	}
	return nil
}

// participants validates a two-party conversation. Notes to self are not
// supported.
func participants(currentID, otherID string) error {
	if err := ValidateUserID("current user", currentID); err != nil {
		return err
	}
	if err := ValidateUserID("userId", otherID); err != nil {
		return err
	}
	if currentID == otherID {
		return apperr.Validation("cannot open a conversation with yourself")
	}
	return nil
}
