package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/dem-blend/internal/security"
)

// Accepted values for the statistic and estimator fields.
const (
	StatisticMedian = "median"
	StatisticMean   = "mean"

	EstimatorOverlap = "overlap"
	EstimatorGlobal  = "global"
)

// DefaultTempPrefix marks every intermediate grid created by a blend.
const DefaultTempPrefix = "tmp_"

// BlendConfig holds the optional settings for blend runs and the CLI.
// Every field is a pointer so a partial file leaves the rest at their
// defaults; use the Get* methods to read values.
type BlendConfig struct {
	// Estimation
	SimpleStatistic    *string `json:"simple_statistic,omitempty"`    // "median" or "mean"
	SymmetricStatistic *string `json:"symmetric_statistic,omitempty"` // "median" or "mean"
	SimpleEstimator    *string `json:"simple_estimator,omitempty"`    // "overlap" or "global"

	// Naming and output
	TempPrefix    *string `json:"temp_prefix,omitempty"`
	Overwrite     *bool   `json:"overwrite,omitempty"`
	RecordHistory *bool   `json:"record_history,omitempty"`

	// Rendering
	PreviewWidthPx  *int `json:"preview_width_px,omitempty"`
	PreviewHeightPx *int `json:"preview_height_px,omitempty"`
	ReportBins      *int `json:"report_bins,omitempty"`
}

func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyBlendConfig returns a BlendConfig with all fields set to nil.
func EmptyBlendConfig() *BlendConfig {
	return &BlendConfig{}
}

// DefaultBlendConfig returns a BlendConfig with every field set to its
// default value.
func DefaultBlendConfig() *BlendConfig {
	return &BlendConfig{
		SimpleStatistic:    ptrString(StatisticMedian),
		SymmetricStatistic: ptrString(StatisticMean),
		SimpleEstimator:    ptrString(EstimatorOverlap),
		TempPrefix:         ptrString(DefaultTempPrefix),
		Overwrite:          ptrBool(false),
		RecordHistory:      ptrBool(true),
		PreviewWidthPx:     ptrInt(800),
		PreviewHeightPx:    ptrInt(600),
		ReportBins:         ptrInt(40),
	}
}

// LoadBlendConfig loads a BlendConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults.
func LoadBlendConfig(path string) (*BlendConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyBlendConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validStatistic(field string, v *string) error {
	if v == nil {
		return nil
	}
	switch *v {
	case StatisticMedian, StatisticMean:
		return nil
	}
	return fmt.Errorf("%s must be %q or %q, got %q", field, StatisticMedian, StatisticMean, *v)
}

func positive(field string, v *int) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", field, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *BlendConfig) Validate() error {
	if err := validStatistic("simple_statistic", c.SimpleStatistic); err != nil {
		return err
	}
	if err := validStatistic("symmetric_statistic", c.SymmetricStatistic); err != nil {
		return err
	}

	if c.SimpleEstimator != nil {
		switch *c.SimpleEstimator {
		case EstimatorOverlap, EstimatorGlobal:
		default:
			return fmt.Errorf("simple_estimator must be %q or %q, got %q", EstimatorOverlap, EstimatorGlobal, *c.SimpleEstimator)
		}
	}

	// The prefix must itself start a legal grid name.
	if c.TempPrefix != nil {
		if err := security.ValidateGridName(*c.TempPrefix + "x"); err != nil {
			return fmt.Errorf("temp_prefix %q: %w", *c.TempPrefix, err)
		}
	}

	if err := positive("preview_width_px", c.PreviewWidthPx); err != nil {
		return err
	}
	if err := positive("preview_height_px", c.PreviewHeightPx); err != nil {
		return err
	}
	return positive("report_bins", c.ReportBins)
}

// GetSimpleStatistic returns the simple_statistic value or the default.
func (c *BlendConfig) GetSimpleStatistic() string {
	if c.SimpleStatistic == nil {
		return StatisticMedian
	}
	return *c.SimpleStatistic
}

// GetSymmetricStatistic returns the symmetric_statistic value or the default.
func (c *BlendConfig) GetSymmetricStatistic() string {
	if c.SymmetricStatistic == nil {
		return StatisticMean
	}
	return *c.SymmetricStatistic
}

// GetSimpleEstimator returns the simple_estimator value or the default.
func (c *BlendConfig) GetSimpleEstimator() string {
	if c.SimpleEstimator == nil {
		return EstimatorOverlap
	}
	return *c.SimpleEstimator
}

// GetTempPrefix returns the temp_prefix value or the default.
func (c *BlendConfig) GetTempPrefix() string {
	if c.TempPrefix == nil {
		return DefaultTempPrefix
	}
	return *c.TempPrefix
}

// GetOverwrite returns the overwrite value or the default.
func (c *BlendConfig) GetOverwrite() bool {
	if c.Overwrite == nil {
		return false
	}
	return *c.Overwrite
}

// GetRecordHistory returns the record_history value or the default.
func (c *BlendConfig) GetRecordHistory() bool {
	if c.RecordHistory == nil {
		return true
	}
	return *c.RecordHistory
}

// GetPreviewWidthPx returns the preview_width_px value or the default.
func (c *BlendConfig) GetPreviewWidthPx() int {
	if c.PreviewWidthPx == nil {
		return 800
	}
	return *c.PreviewWidthPx
}

// GetPreviewHeightPx returns the preview_height_px value or the default.
func (c *BlendConfig) GetPreviewHeightPx() int {
	if c.PreviewHeightPx == nil {
		return 600
	}
	return *c.PreviewHeightPx
}

// GetReportBins returns the report_bins value or the default.
func (c *BlendConfig) GetReportBins() int {
	if c.ReportBins == nil {
		return 40
	}
	return *c.ReportBins
}
