package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv names the environment variable that selects the home directory.
const HomeEnv = "REPAIRBOARD_HOME"

// ResolveHome picks the home directory: override, then $REPAIRBOARD_HOME, then ~/.repairboard.
// A leading "~/" is expanded in the first two.
func ResolveHome(override string) (string, error) {
	for _, p := range []string{override, os.Getenv(HomeEnv)} {
		if p == "" {
			continue
		}
		return expandHome(p)
	}
	u, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine user home directory; set " + HomeEnv)
	}
	return filepath.Join(u, ".repairboard"), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return filepath.Clean(p), nil
	}
	u, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(u, strings.TrimPrefix(p, "~")), nil
}
