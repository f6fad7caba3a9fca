// Package config holds composition defaults: paper size, text style, table
// geometry, layout margins and writer settings. Configuration is YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfcompose/pagesize"
)

// Config is the root configuration structure.
type Config struct {
	Page   PageConfig   `yaml:"page"`
	Text   TextConfig   `yaml:"text"`
	Table  TableConfig  `yaml:"table"`
	Layout LayoutConfig `yaml:"layout"`
	Writer WriterConfig `yaml:"writer"`
}

// PageConfig selects the size used by Document.AddPage.
// Width and Height are used when Size is "custom".
type PageConfig struct {
	Size         string  `yaml:"size"`
	Width        float64 `yaml:"width"`
	Height       float64 `yaml:"height"`
	HeaderMargin float64 `yaml:"header_margin"`
}

// TextConfig is the default text style.
type TextConfig struct {
	Family     string  `yaml:"family"`
	Size       float64 `yaml:"size"`
	LineHeight float64 `yaml:"line_height"`
}

// TableConfig holds table layout defaults. CellPadding and BorderWidth
// replace the style values of every table drawn on a configured page.
type TableConfig struct {
	RowHeight   float64 `yaml:"row_height"`
	ColumnWidth float64 `yaml:"column_width"`
	CellPadding float64 `yaml:"cell_padding"`
	BorderWidth float64 `yaml:"border_width"`
}

// LayoutConfig holds flow layout margins in points.
type LayoutConfig struct {
	MarginTop    float64 `yaml:"margin_top"`
	MarginBottom float64 `yaml:"margin_bottom"`
	MarginLeft   float64 `yaml:"margin_left"`
	MarginRight  float64 `yaml:"margin_right"`
}

// WriterConfig controls serialization.
type WriterConfig struct {
	Compress      bool   `yaml:"compress"`
	Deterministic bool   `yaml:"deterministic"`
	Producer      string `yaml:"producer"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Page: PageConfig{
			Size:         "A4",
			HeaderMargin: 50,
		},
		Text: TextConfig{
			Family:     "Arial",
			Size:       12,
			LineHeight: 1.2,
		},
		Table: TableConfig{
			RowHeight:   20,
			ColumnWidth: 100,
			CellPadding: 5,
			BorderWidth: 1,
		},
		Layout: LayoutConfig{
			MarginTop:    50,
			MarginBottom: 50,
			MarginLeft:   50,
			MarginRight:  50,
		},
		Writer: WriterConfig{
			Compress: true,
			Producer: "pdfcompose",
		},
	}
}

// Load reads configuration from a YAML file. Missing keys keep their default
// values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	if _, err := c.PageSize(); err != nil {
		return err
	}
	if c.Text.Size <= 0 {
		return fmt.Errorf("text.size must be positive, got %g", c.Text.Size)
	}
	if c.Table.RowHeight <= 0 {
		return fmt.Errorf("table.row_height must be positive, got %g", c.Table.RowHeight)
	}
	if c.Table.ColumnWidth <= 0 {
		return fmt.Errorf("table.column_width must be positive, got %g", c.Table.ColumnWidth)
	}
	if c.Table.CellPadding < 0 {
		return fmt.Errorf("table.cell_padding must not be negative, got %g", c.Table.CellPadding)
	}
	if c.Table.BorderWidth < 0 {
		return fmt.Errorf("table.border_width must not be negative, got %g", c.Table.BorderWidth)
	}
	return nil
}

// PageSize resolves the configured page size.
func (c *Config) PageSize() (pagesize.Size, error) {
	if c.Page.Size == "" {
		return pagesize.A4, nil
	}
	if c.Page.Size == "custom" || c.Page.Size == "Custom" {
		if c.Page.Width <= 0 || c.Page.Height <= 0 {
			return pagesize.Size{}, fmt.Errorf("custom page size needs positive width and height")
		}
		return pagesize.Custom(c.Page.Width, c.Page.Height), nil
	}
	return pagesize.Parse(c.Page.Size)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
