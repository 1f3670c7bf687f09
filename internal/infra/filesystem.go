package infra

import (
	"os"
	"path"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
)

// GetWorkDir joins parts under base (~/.ngmod when empty), expands the home
// directory and makes sure the result exists.
func GetWorkDir(base string, parts ...string) (string, error) {
	if base == "" {
		base = filepath.Join("~", ".ngmod")
	}
	workDir, err := homedir.Expand(filepath.Join(append([]string{base}, parts...)...))
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		return "", err
	}
	log.WithField("context", "infra").WithField("path", workDir).Debug("work dir ready")
	return workDir, nil
}

// GetResourcesDir builds a path inside the embedded resources filesystem.
func GetResourcesDir(parts ...string) string {
	return path.Join(parts...)
}
