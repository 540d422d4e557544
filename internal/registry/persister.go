package registry

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// yamlDocument is the on-disk shape of a FilePersister's registry file,
// mirroring internal/config's `repositories:` list so an operator can hand
// -edit either file with the same mental model.
type yamlDocument struct {
	Repositories []models.Repository `yaml:"repositories"`
}

// FilePersister durably records the registry to a YAML file on every
// mutation, adapted from internal/config's loadYAML helper (spec
// "Repository registry persistence hook" supplement).
type FilePersister struct {
	Path string
}

func (p FilePersister) Save(repos []models.Repository) error {
	doc := yamlDocument{Repositories: repos}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, b, 0o644)
}

// LoadFile reads a registry file previously written by FilePersister,
// returning an empty slice (not an error) if the file does not exist yet —
// the first Add on a fresh deployment creates it.
func LoadFile(path string) ([]models.Repository, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc yamlDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc.Repositories, nil
}
