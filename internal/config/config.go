// Package config loads the hierarchical startup configuration (spec §6):
// the service file enumerating channels, each channel's point/mapping CSV
// directory, and the model file defining ModSrv templates and instances.
// Bindings only, via github.com/spf13/viper + github.com/mitchellh/mapstructure,
// the same tagging convention the reference library's Field/BuilderRequest
// types use for their own config structs.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/comsrv/comsrv/internal/pointmodel"
)

// ChannelDef is one entry in the service file's channel list.
type ChannelDef struct {
	ID           string                 `mapstructure:"id"`
	Name         string                 `mapstructure:"name"`
	Protocol     pointmodel.ProtocolKind `mapstructure:"protocol"`
	Parameters   map[string]string      `mapstructure:"parameters"`
	CSVBasePath  string                 `mapstructure:"csv_base_path"`
	IntervalMs   int                    `mapstructure:"interval_ms"`
	TimeoutMs    int                    `mapstructure:"timeout_ms"`
	BatchSize    int                    `mapstructure:"batch_size"`
}

// ServiceFile is the top-level ComSrv configuration document.
type ServiceFile struct {
	Channels []ChannelDef `mapstructure:"channels"`
	StoreURL string       `mapstructure:"store_url"`
	LogLevel string       `mapstructure:"log_level"`
}

// ModelDataPointDef mirrors model.DataPointDef's on-disk shape.
type ModelDataPointDef struct {
	BaseID      string `mapstructure:"base_id"`
	Unit        string `mapstructure:"unit"`
	Description string `mapstructure:"description"`
	Category    string `mapstructure:"category"`
}

// ModelActionDef mirrors model.ActionDef's on-disk shape.
type ModelActionDef struct {
	BaseID      string `mapstructure:"base_id"`
	Description string `mapstructure:"description"`
}

// ModelTemplateDef is one template entry in the model file.
type ModelTemplateDef struct {
	ID            string                       `mapstructure:"id"`
	DataPointDefs map[string]ModelDataPointDef `mapstructure:"data_point_definitions"`
	ActionDefs    map[string]ModelActionDef    `mapstructure:"action_definitions"`
}

// ModelMappingDef is one instance's mapping entry in the model file.
type ModelMappingDef struct {
	ChannelID string            `mapstructure:"channel_id"`
	Data      map[string]uint32 `mapstructure:"data"`
	Action    map[string]uint32 `mapstructure:"action"`
}

// ModelInstanceDef is one instance entry in the model file.
type ModelInstanceDef struct {
	ID          string            `mapstructure:"id"`
	TemplateRef string            `mapstructure:"template_ref"`
	Mapping     ModelMappingDef   `mapstructure:"mapping"`
	Metadata    map[string]string `mapstructure:"metadata"`
}

// ModelFile is the top-level ModSrv configuration document.
type ModelFile struct {
	Templates       []ModelTemplateDef `mapstructure:"templates"`
	Instances       []ModelInstanceDef `mapstructure:"instances"`
	SyncIntervalMs  int                `mapstructure:"sync_interval_ms"`
	StoreURL        string             `mapstructure:"store_url"`
	LogLevel        string             `mapstructure:"log_level"`
}

// ConfigError aggregates every configuration problem found at load, per
// spec §4.6/§9's "single aggregated ConfigError, not fail on first offender"
// convention.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %d problem(s): %v", len(e.Problems), e.Problems)
}

// LoadServiceFile reads and binds the service file at path, applying the
// STORE_URL/LOG_LEVEL/CSV_BASE_PATH environment overrides named in spec §6.
func LoadServiceFile(path string) (ServiceFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("") // raw names, matching spec's bare env var list
	v.BindEnv("store_url", "STORE_URL")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("csv_base_path", "CSV_BASE_PATH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return ServiceFile{}, fmt.Errorf("config: reading service file: %w", err)
	}

	var sf ServiceFile
	if err := v.Unmarshal(&sf); err != nil {
		return ServiceFile{}, fmt.Errorf("config: unmarshalling service file: %w", err)
	}

	if basePath := v.GetString("csv_base_path"); basePath != "" {
		for i := range sf.Channels {
			if sf.Channels[i].CSVBasePath == "" {
				sf.Channels[i].CSVBasePath = filepath.Join(basePath, sf.Channels[i].ID)
			}
		}
	}

	var problems []string
	seen := make(map[string]bool)
	for _, ch := range sf.Channels {
		if ch.ID == "" {
			problems = append(problems, "channel entry missing id")
			continue
		}
		if seen[ch.ID] {
			problems = append(problems, fmt.Sprintf("duplicate channel id %q", ch.ID))
		}
		seen[ch.ID] = true
		switch ch.Protocol {
		case pointmodel.ProtocolModbusTCP, pointmodel.ProtocolModbusRTU, pointmodel.ProtocolVirtual:
		default:
			problems = append(problems, fmt.Sprintf("channel %q: unknown protocol %q", ch.ID, ch.Protocol))
		}
	}
	if len(problems) > 0 {
		return ServiceFile{}, &ConfigError{Problems: problems}
	}
	return sf, nil
}

// LoadModelFile reads and binds the model file at path.
func LoadModelFile(path string) (ModelFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.BindEnv("store_url", "STORE_URL")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return ModelFile{}, fmt.Errorf("config: reading model file: %w", err)
	}

	var mf ModelFile
	if err := v.Unmarshal(&mf); err != nil {
		return ModelFile{}, fmt.Errorf("config: unmarshalling model file: %w", err)
	}

	var problems []string
	templateIDs := make(map[string]bool)
	for _, t := range mf.Templates {
		if t.ID == "" {
			problems = append(problems, "template entry missing id")
			continue
		}
		templateIDs[t.ID] = true
	}
	instanceIDs := make(map[string]bool)
	for _, inst := range mf.Instances {
		if inst.ID == "" {
			problems = append(problems, "instance entry missing id")
			continue
		}
		if instanceIDs[inst.ID] {
			problems = append(problems, fmt.Sprintf("duplicate instance id %q", inst.ID))
		}
		instanceIDs[inst.ID] = true
		if !templateIDs[inst.TemplateRef] {
			problems = append(problems, fmt.Sprintf("instance %q references unknown template %q", inst.ID, inst.TemplateRef))
		}
	}
	if len(problems) > 0 {
		return ModelFile{}, &ConfigError{Problems: problems}
	}
	return mf, nil
}
