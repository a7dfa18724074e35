package bus

import (
	"errors"
	"strings"
)

// ErrBadEndpoint is returned for endpoint strings that are not ipc:// URLs.
var ErrBadEndpoint = errors.New("bus endpoint must be of the form ipc:///path/to/socket")

// SocketPath maps an ipc:// endpoint to its unix socket path. A bare absolute
// path is accepted as-is so tests can point at temp dirs directly.
func SocketPath(endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "ipc://") {
		path := strings.TrimPrefix(endpoint, "ipc://")
		if path == "" {
			return "", ErrBadEndpoint
		}
		return path, nil
	}
	if strings.HasPrefix(endpoint, "/") {
		return endpoint, nil
	}
	return "", ErrBadEndpoint
}
