// Package channels reads the list of WordPress channels to migrate.
package channels

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
)

var requiredColumns = []string{"name", "url", "slug", "editor"}

// Load reads channel descriptors from a CSV file
func Load(path string, logger *slog.Logger) ([]domain.ChannelDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("cannot open channel file %s", path), err)
	}
	defer f.Close()

	return Parse(f, logger)
}

// Parse reads channel descriptors in source order. Comment lines (first
// non-blank character '#') and blank lines are dropped before decoding.
func Parse(r io.Reader, logger *slog.Logger) ([]domain.ChannelDescriptor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var kept strings.Builder
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		kept.WriteString(line)
		kept.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.NewConfigError("cannot read channel file", err)
	}

	reader := csv.NewReader(strings.NewReader(kept.String()))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperrors.NewConfigError("channel file has no header", nil)
	}
	if err != nil {
		return nil, apperrors.NewConfigError("malformed channel file header", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewConfigError("channel file is missing required columns: "+strings.Join(missing, ", "), nil)
	}

	field := func(record []string, col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return record[i]
	}

	var out []domain.ChannelDescriptor
	slugRows := make(map[string]int)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("malformed channel row %d", line), err)
		}

		channel := domain.NewChannelDescriptor(
			field(record, "name"),
			field(record, "url"),
			field(record, "slug"),
			field(record, "editor"),
		)
		if channel.Name == "" {
			logger.Warn("skipping channel row with empty name", "row", line)
			continue
		}
		if channel.URL == "" {
			logger.Warn("skipping channel row with empty url", "row", line, "channel", channel.Name)
			continue
		}
		if first, ok := slugRows[channel.Slug]; ok {
			return nil, apperrors.NewConfigError(fmt.Sprintf("channel rows %d and %d share the slug %q", first, line, channel.Slug), nil)
		}
		slugRows[channel.Slug] = line
		out = append(out, channel)
	}

	return out, nil
}

// Window returns the channels at 1-based positions start..stop inclusive.
// A zero bound is open.
func Window(channels []domain.ChannelDescriptor, start, stop int) []domain.ChannelDescriptor {
	var out []domain.ChannelDescriptor
	for i, c := range channels {
		pos := i + 1
		if start > 0 && pos < start {
			continue
		}
		if stop > 0 && pos > stop {
			continue
		}
		out = append(out, c)
	}
	return out
}
