package feeders

import (
	"encoding/json"
	"fmt"
)

// JSONFeeder reads JSON files.
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

// Feed reads the JSON file and populates the provided structure
func (j JSONFeeder) Feed(target any) error {
	data, err := readFile(j.Path, "JSON")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("json feed error: %w", err)
	}
	return nil
}
