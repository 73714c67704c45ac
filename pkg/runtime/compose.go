package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Candidate compose file names, in lookup order.
var composeFileNames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

// FindComposeFile locates the declarative compose file inside a project
// directory. Returns "" when none exists.
func FindComposeFile(projectDir string) string {
	for _, name := range composeFileNames {
		path := filepath.Join(projectDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// composeFile is the subset of the compose schema the daemon reads.
type composeFile struct {
	Services map[string]yaml.Node `yaml:"services"`
}

// ComposeServices parses the service names a compose file defines,
// sorted. Unreadable or unparsable files return an error; callers treat
// that as "no defined services" rather than failing the snapshot.
func ComposeServices(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cf composeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	names := make([]string, 0, len(cf.Services))
	for name := range cf.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
