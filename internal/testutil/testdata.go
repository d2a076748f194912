// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Path returns the absolute path of a fixture stored next to this file.
func Path(filename string) string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), filename)
}

// LoadJSON reads a JSON object fixture. When target is given the document is also
// decoded into it.
func LoadJSON(filename string, target ...any) (map[string]any, error) {
	data, err := os.ReadFile(Path(filename))
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	if len(target) > 0 && target[0] != nil {
		if err := json.Unmarshal(data, target[0]); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
	}
	return result, nil
}
