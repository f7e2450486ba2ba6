// Package model implements the Model Service core (spec §4.9, §3 model data
// model): template-instantiated logical views over one or more channels'
// points. A Template declares named data points and actions; an Instance
// binds those names to a concrete channel's point ids; a Projector mirrors
// channel state into model state on a periodic tick.
package model

import (
	"fmt"

	"github.com/comsrv/comsrv/internal/pointmodel"
)

// DataPointDef is one entry in a template's data_point_definitions.
type DataPointDef struct {
	Name        string
	BaseID      string
	Unit        string
	Description string
	// Category is the category the bound channel point is expected to
	// belong to, resolved by template declaration convention (spec §4.9).
	Category pointmodel.Category
}

// ActionDef is one entry in a template's action_definitions.
type ActionDef struct {
	Name        string
	BaseID      string
	Description string
}

// Template is the reusable logical shape a model Instance binds to a
// concrete channel.
type Template struct {
	ID            string
	DataPointDefs map[string]DataPointDef
	ActionDefs    map[string]ActionDef
}

// Mapping binds an Instance's named data points/actions to a channel's point
// ids.
type Mapping struct {
	ChannelID string
	Data      map[string]uint32
	Action    map[string]uint32
}

// Instance is one configured model: a template reference plus the mapping
// resolving its names to a channel's points.
type Instance struct {
	ID          string
	TemplateRef string
	Mapping     Mapping
	Metadata    map[string]string
}

// ValidationError aggregates every mapping problem found for one instance,
// mirroring the point table loader's single-aggregated-error convention
// (spec §4.6) rather than failing on the first offender.
type ValidationError struct {
	InstanceID string
	Problems   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: instance %s failed validation: %v", e.InstanceID, e.Problems)
}

// Resolve validates inst against its template and the channel's point model,
// per the invariant in spec §3: every name in the mapping must exist in the
// template; every point_id must exist in the channel's corresponding
// category.
func Resolve(inst Instance, tmpl Template, channelModel pointmodel.Model) error {
	var problems []string

	for name, pointID := range inst.Mapping.Data {
		def, ok := tmpl.DataPointDefs[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("data point %q not declared in template %s", name, tmpl.ID))
			continue
		}
		table := channelModel.Tables.Table(def.Category)
		if table == nil {
			problems = append(problems, fmt.Sprintf("data point %q: template category %q has no channel table", name, def.Category))
			continue
		}
		if _, ok := table[pointID]; !ok {
			problems = append(problems, fmt.Sprintf("data point %q: point_id %d not found in channel %s category %s", name, pointID, inst.Mapping.ChannelID, def.Category))
		}
	}

	for name, pointID := range inst.Mapping.Action {
		if _, ok := tmpl.ActionDefs[name]; !ok {
			problems = append(problems, fmt.Sprintf("action %q not declared in template %s", name, tmpl.ID))
			continue
		}
		found := false
		for _, cat := range []pointmodel.Category{pointmodel.Control, pointmodel.Adjustment} {
			if table := channelModel.Tables.Table(cat); table != nil {
				if _, ok := table[pointID]; ok {
					found = true
					break
				}
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("action %q: point_id %d not found in channel %s control/adjustment tables", name, pointID, inst.Mapping.ChannelID))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{InstanceID: inst.ID, Problems: problems}
	}
	return nil
}

// Describe returns the resolved template+mapping for an instance, an
// introspection helper for debugging tooling (supplementing spec §4.9's
// "reverse direction" remark), mirroring the reference corpus's convention
// of exposing statistics (poller.BatchStatistics) alongside the hot path.
type Description struct {
	Instance Instance
	Template Template
}

// Registry holds the loaded templates and instances a Describe call reads
// from; the config loader populates it at startup.
type Registry struct {
	Templates map[string]Template
	Instances map[string]Instance
}

func (r Registry) Describe(instanceID string) (Description, error) {
	inst, ok := r.Instances[instanceID]
	if !ok {
		return Description{}, fmt.Errorf("model: instance %s not found", instanceID)
	}
	tmpl, ok := r.Templates[inst.TemplateRef]
	if !ok {
		return Description{}, fmt.Errorf("model: instance %s references unknown template %s", instanceID, inst.TemplateRef)
	}
	return Description{Instance: inst, Template: tmpl}, nil
}
