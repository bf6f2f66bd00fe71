package domain

import (
	"fmt"
	"strings"
)

// Keys of an importer body understood by the migrator
const (
	KeyLabel  = "o:label"
	KeyMapper = "o-bulk:mapper"
	KeyConfig = "o:config"

	mappingPrefix = "mapping:"
)

// ProcessorActions are the conflict-resolution actions accepted by the bulk importer
var ProcessorActions = []string{"create", "append", "revise", "update", "replace", "delete", "skip"}

// ImporterDefinition is a reusable import pipeline shared by every channel of a run.
// Body is the importer resource as sent to Omeka S.
type ImporterDefinition struct {
	Label string
	Body  map[string]any
}

// NewImporterDefinition builds a definition from a decoded importer body
func NewImporterDefinition(body map[string]any) ImporterDefinition {
	label, _ := body[KeyLabel].(string)
	return ImporterDefinition{Label: label, Body: body}
}

// Validate checks the keys the migrator relies on
func (d ImporterDefinition) Validate() error {
	if strings.TrimSpace(d.Label) == "" {
		return fmt.Errorf("importer is missing %q", KeyLabel)
	}
	if action, ok := d.Processor()["action"]; ok {
		s, _ := action.(string)
		valid := false
		for _, a := range ProcessorActions {
			if s == a {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("importer %q: unknown processor action %v", d.Label, action)
		}
	}
	return nil
}

// MapperLabel returns the label referenced by a "mapping:<label>" mapper, if any
func (d ImporterDefinition) MapperLabel() (string, bool) {
	s, ok := d.Body[KeyMapper].(string)
	if !ok || !strings.HasPrefix(s, mappingPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, mappingPrefix), true
}

// Reader returns the reader section (source url, xsl sheet and params)
func (d ImporterDefinition) Reader() map[string]any {
	return section(d.Body, "reader")
}

// Processor returns the processor section (action, identifier matching, visibility, owner)
func (d ImporterDefinition) Processor() map[string]any {
	return section(d.Body, "processor")
}

// AsTask reports whether imports are saved as deferred tasks instead of executed
func (d ImporterDefinition) AsTask() bool {
	v, _ := section(d.Body, "importer")["as_task"].(string)
	return v == "1"
}

// WithTaskMode returns a copy with o:config.importer.as_task set
func (d ImporterDefinition) WithTaskMode(asTask bool) ImporterDefinition {
	body := DeepCopy(d.Body)
	cfg, ok := body[KeyConfig].(map[string]any)
	if !ok {
		cfg = map[string]any{}
		body[KeyConfig] = cfg
	}
	imp, ok := cfg["importer"].(map[string]any)
	if !ok {
		imp = map[string]any{}
		cfg["importer"] = imp
	}
	if asTask {
		imp["as_task"] = "1"
	} else {
		imp["as_task"] = "0"
	}
	return ImporterDefinition{Label: d.Label, Body: body}
}

// WithMapper returns a copy whose mapper points at an existing mapping
func (d ImporterDefinition) WithMapper(id int, label string) ImporterDefinition {
	body := DeepCopy(d.Body)
	body[KeyMapper] = map[string]any{
		"@type":   "o-bulk:Mapping",
		"o:id":    id,
		"o:label": label,
	}
	return ImporterDefinition{Label: d.Label, Body: body}
}

func section(body map[string]any, name string) map[string]any {
	cfg, _ := body[KeyConfig].(map[string]any)
	s, _ := cfg[name].(map[string]any)
	if s == nil {
		return map[string]any{}
	}
	return s
}

// DeepCopy copies nested maps and slices decoded from JSON
func DeepCopy(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return DeepCopy(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = copyValue(e)
		}
		return s
	default:
		return v
	}
}
