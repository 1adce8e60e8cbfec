package bootstrap

import (
	"strings"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
)

// ParseIndex parses the batch index of an indexed server: one
// "<name>|<checksum>" per line. Blank lines are ignored, \r and \n both
// separate lines. A line without '|' yields a descriptor without checksum.
// Server order is kept as is.
func ParseIndex(body string) []domain.ArtifactDescriptor {
	lines := strings.FieldsFunc(body, func(r rune) bool {
		return r == '\r' || r == '\n'
	})

	descriptors := make([]domain.ArtifactDescriptor, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, checksum, _ := strings.Cut(line, "|")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		descriptors = append(descriptors, domain.ArtifactDescriptor{
			Name:     name,
			Checksum: strings.ToLower(strings.TrimSpace(checksum)),
		})
	}
	return descriptors
}

// ParseLegacyList parses the comma-separated file list of a legacy server
func ParseLegacyList(body string) []string {
	parts := strings.Split(body, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
