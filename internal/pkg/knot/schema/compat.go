package schema

import (
	"io"

	"gopkg.in/yaml.v2"
)

// compatFile is the on-disk YAML shape for a compatibility table,
// grounded on devicemanagement.DeviceManagementConfig's "types" loading.
type compatFile struct {
	Entries []struct {
		TypeID    uint16 `yaml:"type_id"`
		ValueType uint8  `yaml:"value_type"`
		Unit      uint8  `yaml:"unit"`
	} `yaml:"entries"`
}

// LoadCompatTable parses a YAML document listing (type_id, value_type,
// unit) triples into a CompatTable. The reader is closed if it
// implements io.Closer, matching devicemanagement.NewConfig's contract.
func LoadCompatTable(r io.Reader) (CompatTable, error) {
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return CompatTable{}, err
	}

	var f compatFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return CompatTable{}, err
	}

	triples := make([]Triple, 0, len(f.Entries))
	for _, e := range f.Entries {
		triples = append(triples, Triple{TypeID: e.TypeID, ValueType: e.ValueType, Unit: e.Unit})
	}

	return NewCompatTable(triples), nil
}
