package pointmodel

import "fmt"

// Diagnosis is a non-failing introspection report: mappings without a
// backing point and points without a mapping, surfaced as warnings rather
// than load failures. Only the validations Load enumerates can fail a
// channel; an unmapped point or a point-less mapping is a normal, if
// unusual, configuration that a channel still starts with.
type Diagnosis struct {
	Warnings []string
}

// Diagnose inspects a loaded Model and reports soft inconsistencies for
// operator visibility, without affecting whether the channel starts.
func Diagnose(m Model) Diagnosis {
	d := Diagnosis{}
	for _, cat := range Categories {
		points := m.Tables.Table(cat)
		mappings := m.Mappings.Table(cat)
		for pointID := range points {
			if _, ok := mappings[pointID]; !ok {
				d.Warnings = append(d.Warnings, fmt.Sprintf("%s: point_id %d has no mapping, it will never be sampled", cat, pointID))
			}
		}
		for pointID := range mappings {
			if _, ok := points[pointID]; !ok {
				d.Warnings = append(d.Warnings, fmt.Sprintf("%s: mapping for point_id %d has no backing point definition", cat, pointID))
			}
		}
	}
	return d
}
