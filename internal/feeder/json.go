package feeder

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// readJSON expects an array of objects. Values are stored in their %v form.
func readJSON(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return toRecords(raw, "JSON")
}

// readYAML expects a sequence of mappings.
func readYAML(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open YAML file: %w", err)
	}
	var raw []map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	return toRecords(raw, "YAML")
}

func toRecords(raw []map[string]interface{}, format string) ([]Record, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s file contains no records", format)
	}
	records := make([]Record, 0, len(raw))
	for i, obj := range raw {
		if len(obj) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		rec := make(Record, len(obj))
		for k, v := range obj {
			rec[k] = fmt.Sprintf("%v", v)
		}
		records = append(records, rec)
	}
	return records, nil
}
