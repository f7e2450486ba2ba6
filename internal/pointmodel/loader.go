package pointmodel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"

	"github.com/comsrv/comsrv/internal/wire"
)

// pointTableFile is the filename (within the channel directory) for a
// category's point table.
func pointTableFile(c Category) string { return string(c) + ".csv" }

// mappingTableFile is the filename (within the channel directory's
// mapping/ subdirectory) for a category's mapping table.
func mappingTableFile(c Category) string { return string(c) + ".csv" }

// Load reads a channel's four point tables and four mapping tables from
// channelDir (and channelDir/mapping/), validating them in the order the
// loader contract specifies, and returns a single aggregated ConfigError
// listing every offending row rather than failing on the first.
func Load(channelDir string) (Model, error) {
	cfgErr := &ConfigError{}

	tables := CategoryTables{
		Measurement: PointTable{},
		Signal:      PointTable{},
		Control:     PointTable{},
		Adjustment:  PointTable{},
	}
	mappings := CategoryMappings{
		Measurement: MappingTable{},
		Signal:      MappingTable{},
		Control:     MappingTable{},
		Adjustment:  MappingTable{},
	}

	for _, cat := range Categories {
		points, err := loadPointTable(filepath.Join(channelDir, pointTableFile(cat)), cat, cfgErr)
		if err == nil {
			assignPointTable(&tables, cat, points)
		}
	}

	for _, cat := range Categories {
		rows, err := loadMappingTable(filepath.Join(channelDir, "mapping", mappingTableFile(cat)), cat, cfgErr)
		if err == nil {
			assignMappingTable(&mappings, cat, rows)
		}
	}

	// (e) mapping references an existing point_id in the same category.
	for _, cat := range Categories {
		points := tables.Table(cat)
		for pointID := range mappings.Table(cat) {
			if _, ok := points[pointID]; !ok {
				cfgErr.Add(fmt.Sprintf("%s: mapping references unknown point_id %d", cat, pointID))
			}
		}
	}

	// (f) Modbus: function_code compatible with category, byte_order width
	// matches data_type word count.
	for _, cat := range Categories {
		for pointID, m := range mappings.Table(cat) {
			if m.FunctionCode == 0 {
				continue // virtual mapping, no function code to validate
			}
			if !functionCodeValidForCategory(cat, m.FunctionCode) {
				cfgErr.Add(fmt.Sprintf("%s: point_id %d has function_code %d incompatible with category", cat, pointID, m.FunctionCode))
				continue
			}
			if m.DataType == wire.Bool {
				continue
			}
			if err := m.DataType.ValidateByteOrderWidth(m.ByteOrder); err != nil {
				cfgErr.Add(fmt.Sprintf("%s: point_id %d: %v", cat, pointID, err))
			}
		}
	}

	if cfgErr.HasIssues() {
		return Model{}, cfgErr
	}
	return Model{Tables: tables, Mappings: mappings}, nil
}

func assignPointTable(t *CategoryTables, c Category, table PointTable) {
	switch c {
	case Measurement:
		t.Measurement = table
	case Signal:
		t.Signal = table
	case Control:
		t.Control = table
	case Adjustment:
		t.Adjustment = table
	}
}

func assignMappingTable(m *CategoryMappings, c Category, table MappingTable) {
	switch c {
	case Measurement:
		m.Measurement = table
	case Signal:
		m.Signal = table
	case Control:
		m.Control = table
	case Adjustment:
		m.Adjustment = table
	}
}

var knownDataTypes = map[wire.DataType]bool{
	wire.Bool: true, wire.Int16: true, wire.Uint16: true,
	wire.Int32: true, wire.Uint32: true, wire.Int64: true, wire.Uint64: true,
	wire.Float16: true, wire.Float32: true, wire.Float64: true,
}

func loadPointTable(path string, cat Category, cfgErr *ConfigError) (PointTable, error) {
	rows, header, err := readCSVRows(path)
	if err != nil {
		cfgErr.Add(fmt.Sprintf("%s: %v", cat, err))
		return nil, err
	}
	if err := requireColumns(header, []string{"point_id", "signal_name", "scale", "offset", "unit", "data_type"}); err != nil {
		cfgErr.Add(fmt.Sprintf("%s: %v", cat, err))
		return nil, err
	}

	table := PointTable{}
	for i, row := range rows {
		var p Point
		if err := decodeRow(row, &p); err != nil {
			cfgErr.Add(fmt.Sprintf("%s: row %d: %v", cat, i+1, err))
			continue
		}
		if _, exists := table[p.PointID]; exists {
			cfgErr.Add(fmt.Sprintf("%s: row %d: duplicate point_id %d", cat, i+1, p.PointID))
			continue
		}
		if !knownDataTypes[p.DataType] {
			cfgErr.Add(fmt.Sprintf("%s: row %d: unknown data_type %q", cat, i+1, p.DataType))
			continue
		}
		if (cat == Measurement || cat == Adjustment) && p.Scale == 0 {
			cfgErr.Add(fmt.Sprintf("%s: row %d: scale must be non-zero for analog point %d", cat, i+1, p.PointID))
			continue
		}
		table[p.PointID] = p
	}
	return table, nil
}

func loadMappingTable(path string, cat Category, cfgErr *ConfigError) (MappingTable, error) {
	rows, header, err := readCSVRows(path)
	if err != nil {
		cfgErr.Add(fmt.Sprintf("%s mapping: %v", cat, err))
		return nil, err
	}
	if err := requireColumns(header, []string{"point_id"}); err != nil {
		cfgErr.Add(fmt.Sprintf("%s mapping: %v", cat, err))
		return nil, err
	}

	table := MappingTable{}
	for i, row := range rows {
		var m Mapping
		if err := decodeRow(row, &m); err != nil {
			cfgErr.Add(fmt.Sprintf("%s mapping: row %d: %v", cat, i+1, err))
			continue
		}
		table[m.PointID] = m
	}
	return table, nil
}

func requireColumns(header []string, required []string) error {
	present := map[string]bool{}
	for _, h := range header {
		present[h] = true
	}
	for _, r := range required {
		if !present[r] {
			return fmt.Errorf("missing required column %q", r)
		}
	}
	return nil
}

func readCSVRows(path string) (rows []map[string]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err = r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%s: empty file, no header row", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, header, fmt.Errorf("%s: %w", path, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func decodeRow(row map[string]string, dst interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(row)
}
