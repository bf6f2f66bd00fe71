package migration

import (
	"context"
	"fmt"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
)

// PreparedImporter is an importer that exists in the repository
type PreparedImporter struct {
	ID    int
	Label string
}

// PrepareImporters makes sure every definition exists in the repository, in
// config order. Existing importers are reused by label and "mapping:<label>"
// mappers are resolved against stored mappings. Any failure aborts the run.
func (o *Orchestrator) PrepareImporters(ctx context.Context, defs []domain.ImporterDefinition, asTask bool) ([]PreparedImporter, error) {
	prepared := make([]PreparedImporter, 0, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, apperrors.NewConfigError("invalid importer definition", err)
		}
		def = def.WithTaskMode(asTask)

		if label, ok := def.MapperLabel(); ok {
			mapping, err := o.repo.FindMappingByLabel(ctx, label)
			if err != nil {
				return nil, fmt.Errorf("importer %q: look up mapping %q: %w", def.Label, label, err)
			}
			if mapping == nil {
				return nil, apperrors.NewConfigError(fmt.Sprintf("importer %q references unknown mapping %q", def.Label, label), nil)
			}
			def = def.WithMapper(mapping.ID, mapping.Label)
		}

		existing, err := o.repo.FindImporterByLabel(ctx, def.Label)
		if err != nil {
			return nil, fmt.Errorf("importer %q: look up: %w", def.Label, err)
		}
		if existing != nil {
			o.logger.Info("reusing importer", "importer", def.Label, "importer_id", existing.ID)
			prepared = append(prepared, PreparedImporter{ID: existing.ID, Label: existing.Label})
			continue
		}

		created, err := o.repo.CreateImporter(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("importer %q: create: %w", def.Label, err)
		}
		o.logger.Info("importer created", "importer", def.Label, "importer_id", created.ID, "as_task", asTask)
		prepared = append(prepared, PreparedImporter{ID: created.ID, Label: def.Label})
	}
	return prepared, nil
}
