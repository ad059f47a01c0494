package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cotwatch/internal/positions"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Environment)
	assert.Equal(t, 156, cfg.Engine.Weeks)
	assert.Equal(t, 10*24*time.Hour, cfg.Engine.SpreadGrace)
	assert.Equal(t, "kh3c-gbw2", cfg.CFTC.Datasets[positions.Disaggregated])
	assert.Len(t, cfg.Exchanges, 2)
	require.Len(t, cfg.Groups, 2)
	assert.True(t, cfg.Groups[0].Required)
	assert.Equal(t, "data/cot_data.json", cfg.Output.Path)

	start, err := cfg.SpreadStart()
	require.NoError(t, err)
	assert.Equal(t, 2023, start.Year())
}

func TestLoadOverridesGroupsAndSchemas(t *testing.T) {
	body := `
groups:
  - key: legacy
    kind: legacy
    required: true
    instruments:
      - code: gold
        name: 黄金
        name_en: GOLD
        pattern: "^GOLD"
schemas:
  tff:
    date: ["as_of"]
    columns:
      open_interest: ["oi"]
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.Len(t, cfg.Groups, 1)
	assert.Equal(t, positions.Legacy, cfg.Groups[0].Kind)

	s, err := cfg.Schema(positions.TFF)
	require.NoError(t, err)
	assert.Equal(t, []string{"oi"}, s.Columns.OpenInterest)
	assert.Equal(t, positions.TFF, s.Kind)

	s, err = cfg.Schema(positions.Legacy)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Columns.PrimaryLong)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Engine: EngineConfig{
				Weeks:              156,
				CurveMonths:        12,
				SpreadStart:        "2023-01-01",
				SpreadYearsForward: 3,
				SpreadWeekday:      "fri",
			},
			Export:    ExportConfig{MaxDataPoints: 10},
			Output:    OutputConfig{Path: "out.json"},
			Exchanges: DefaultExchanges(),
			Groups:    DefaultGroups(),
		}
	}

	require.NoError(t, base().Validate())

	cases := map[string]func(c *Config){
		"weeks":          func(c *Config) { c.Engine.Weeks = 0 },
		"spread start":   func(c *Config) { c.Engine.SpreadStart = "01/01/2023" },
		"weekday":        func(c *Config) { c.Engine.SpreadWeekday = "someday" },
		"exchange":       func(c *Config) { c.Exchanges[0].Exchange = "LME" },
		"duplicate key":  func(c *Config) { c.Exchanges[1].Key = c.Exchanges[0].Key },
		"pattern":        func(c *Config) { c.Groups[0].Instruments[0].Pattern = "(" },
		"report kind":    func(c *Config) { c.Groups[0].Kind = "supplemental" },
		"telegram token": func(c *Config) { c.Alerting.Telegram.Enabled = true },
		"warehouse url":  func(c *Config) { c.Warehouse.Enabled = true },
		"output":         func(c *Config) { c.Output.Path = "" },
		"reserved group": func(c *Config) { c.Groups[0].Key = "curves" },
		"list key clash": func(c *Config) { c.Groups[1].ListKey = "commodity_list" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	c := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	assert.Equal(t, 100, c.ResolveMaxPoints(0))
	assert.Equal(t, 5, c.ResolveMaxPoints(5))
}
