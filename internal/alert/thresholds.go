package alert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/predictradar/signalscan/internal/model"
)

// Thresholds is the static per-window absolute-pp trigger table
// (spec.md §4.7).
type Thresholds map[model.Window]float64

// DefaultThresholds matches spec.md §4.7's example table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		model.Window1m:  6,
		model.Window5m:  8,
		model.Window10m: 10,
		model.Window30m: 14,
		model.Window1h:  18,
		model.Window6h:  24,
		model.Window12h: 30,
		model.Window24h: 38,
	}
}

type thresholdsFile struct {
	Thresholds map[string]float64 `yaml:"thresholds"`
}

// LoadThresholds reads the operational threshold table from YAML,
// falling back to DefaultThresholds for any window the file omits.
func LoadThresholds(path string) (Thresholds, error) {
	result := DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("read thresholds file: %w", err)
	}

	var parsed thresholdsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result, fmt.Errorf("parse thresholds file: %w", err)
	}

	for w, v := range parsed.Thresholds {
		result[model.Window(w)] = v
	}
	return result, nil
}
