package loonypg

import (
	"errors"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ServerVersion parses the server_version session parameter into a semantic
// version. The raw parameter may carry a build suffix ("14.5 (Debian
// 14.5-1.pgdg110+1)") or a development tag ("17beta1"); only the leading
// numeric part is considered.
func (c *Conn) ServerVersion() (*semver.Version, error) {
	raw := c.ParameterStatus("server_version")
	if raw == "" {
		return nil, errors.New("server did not report server_version")
	}

	return parseServerVersion(raw)
}

func parseServerVersion(raw string) (*semver.Version, error) {
	if idx := strings.IndexByte(raw, ' '); idx >= 0 {
		raw = raw[:idx]
	}

	end := len(raw)
	for i, r := range raw {
		if (r < '0' || r > '9') && r != '.' {
			end = i
			break
		}
	}
	raw = strings.TrimSuffix(raw[:end], ".")

	return semver.NewVersion(raw)
}
