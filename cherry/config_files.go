package cherry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// decodeConfigFile reads path into v. Files ending in .yaml/.yml are
// parsed as YAML, everything else as JSON which may contain comments
// and trailing commas.
func decodeConfigFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decodeConfigBytes(filepath.Ext(path), data, v)
}

func decodeConfigBytes(ext string, data []byte, v any) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
			return fmt.Errorf("parsing json: %w", err)
		}
	}
	return nil
}
