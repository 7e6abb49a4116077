package pipeline

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/wastetwin/provision-core/internal/entity"
)

// Render parses the descriptors under the given paths and writes them to
// w as markdown, grouped by entity type in order of first appearance.
// Each object gets a heading line and a YAML body in the wire field
// names, so the output doubles as a provisioning review document.
//
// Nothing is sent to the platform. Any parse or classification error
// aborts the render: a review document with holes is worse than none.
func Render(w io.Writer, paths []string, defaultProtocol string) error {
	files, err := ExpandPaths(paths)
	if err != nil {
		return err
	}

	groups := make(map[string]*entity.Group)
	byType := make(map[string][]*entity.Record)
	var order []string

	for _, file := range files {
		err := forEachRecord(file, defaultProtocol, groups, func(item Item) error {
			if item.Err != nil {
				return item.Err
			}
			typeName := recordType(item.Record)
			if _, seen := byType[typeName]; !seen {
				order = append(order, typeName)
			}
			byType[typeName] = append(byType[typeName], item.Record)
			return nil
		})
		if err != nil {
			return err
		}
	}

	for _, typeName := range order {
		if _, err := fmt.Fprintf(w, "### %s\n\n", typeName); err != nil {
			return err
		}
		for _, record := range byType[typeName] {
			if err := renderRecord(w, record); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordType returns the entity type of either record variant.
func recordType(record *entity.Record) string {
	if record.Group != nil {
		return record.Group.EntityType
	}
	return record.Entity.EntityType
}

// renderRecord writes one object's heading and YAML body.
func renderRecord(w io.Writer, record *entity.Record) error {
	var heading string
	var body any
	if record.Group != nil {
		heading = fmt.Sprintf("*Group: %s*", record.Group.APIKey)
		body = record.Group
	} else {
		heading = fmt.Sprintf("*Entity: %s*", record.Entity.DeviceID)
		body = record.Entity
	}

	encoded, err := yaml.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n\n```yaml\n%s```\n\n", heading, encoded)
	return err
}
