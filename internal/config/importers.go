package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
)

// importerFile is the top level of the importer configuration
type importerFile struct {
	Importers []map[string]any `json:"importers"`
}

// LoadImporters reads importer definitions from a JSON or YAML file.
// Every failure is a configuration error.
func LoadImporters(path string) ([]domain.ImporterDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("cannot read importer configuration %s", path), err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("malformed importer configuration %s", path), err)
		}
	}

	return ParseImporters(data)
}

// ParseImporters decodes the JSON form of the importer configuration
func ParseImporters(data []byte) ([]domain.ImporterDefinition, error) {
	var file importerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewConfigError("malformed importer configuration", err)
	}

	defs := make([]domain.ImporterDefinition, 0, len(file.Importers))
	for i, body := range file.Importers {
		def := domain.NewImporterDefinition(body)
		if err := def.Validate(); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("importer #%d", i+1), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
