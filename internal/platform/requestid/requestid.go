package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

// New returns a fresh run id. Every API call made during one invocation
// carries the same id so the platform side can correlate them.
func New() string {
	return uuid.NewString()
}

// Set stamps id on req unless it is blank.
func Set(req *http.Request, id string) {
	if id = strings.TrimSpace(id); id != "" {
		req.Header.Set(Header, id)
	}
}
