package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// TokenExpired inspects a response body against the integration's expiration
// detection config. Some targets return 200 with an error envelope when a
// token has expired, so status-code classification alone misses them.
func TokenExpired(detection *models.TokenExpirationDetection, body []byte) bool {
	if detection == nil || !detection.Enabled || detection.Path == "" {
		return false
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return false
	}
	raw, ok := extractPath(decoded, detection.Path)
	if !ok {
		return false
	}
	value := strings.ToLower(fmt.Sprint(raw))
	for _, marker := range detection.Values {
		if marker != "" && strings.Contains(value, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
