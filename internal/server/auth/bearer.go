package auth

import (
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
)

// ExtractBearer returns the token carried in an authorization header value.
// The "Bearer " prefix is optional and matched case-insensitively. An empty
// header, or a bare prefix, yields common.ErrMissingCredential.
func ExtractBearer(header string) (string, error) {
	value := strings.TrimSpace(header)
	prefix := common.BearerPrefix
	if len(value) >= len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
		value = strings.TrimSpace(value[len(prefix):])
	} else if strings.EqualFold(value, strings.TrimSpace(prefix)) {
		value = ""
	}
	if value == "" {
		return "", common.ErrMissingCredential
	}
	return value, nil
}
