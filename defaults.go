//go:build !windows
// +build !windows

package loonypg

import (
	"os"
	"os/user"
	"path/filepath"
)

func defaultSettings() map[string]string {
	settings := make(map[string]string)

	settings["host"] = defaultHost()
	settings["port"] = "5432"
	settings["client_encoding"] = "UTF8"

	// Default to the OS user name. Purposely ignoring err getting user name from
	// OS. The client application will simply have to specify the user in that
	// case (which they typically will be doing anyway).
	userVar, err := user.Current()
	if err == nil {
		settings["user"] = userVar.Username
		settings["passfile"] = filepath.Join(userVar.HomeDir, ".pgpass")
		settings["servicefile"] = filepath.Join(userVar.HomeDir, ".pg_service.conf")
	}

	return settings
}

// defaultHost attempts to mimic libpq's default host. libpq uses the default
// unix socket location on *nix and localhost on Windows. The default socket
// location is compiled into libpq. Since loonypg does not have access to that
// default it checks the existence of common locations.
func defaultHost() string {
	candidatePaths := []string{
		"/var/run/postgresql", // Debian
		"/private/tmp",        // OSX - homebrew
		"/tmp",                // standard PostgreSQL
	}

	for _, path := range candidatePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "localhost"
}
