//go:build windows
// +build windows

package loonypg

import (
	"os/user"
	"path/filepath"
	"strings"
)

func defaultSettings() map[string]string {
	settings := make(map[string]string)

	settings["host"] = "localhost"
	settings["port"] = "5432"
	settings["client_encoding"] = "UTF8"

	// Default to the OS user name. Purposely ignoring err getting user name from
	// OS. The client application will simply have to specify the user in that
	// case (which they typically will be doing anyway).
	userVar, err := user.Current()
	if err == nil {
		username := userVar.Username
		if strings.Contains(username, "\\") {
			parts := strings.SplitN(username, "\\", 2)
			username = parts[1]
		}

		settings["user"] = username
		settings["passfile"] = filepath.Join(userVar.HomeDir, "postgresql", "pgpass.conf")
		settings["servicefile"] = filepath.Join(userVar.HomeDir, ".pg_service.conf")
	}

	return settings
}
