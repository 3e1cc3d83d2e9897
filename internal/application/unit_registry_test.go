package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tally/infrastructure/units"
	"github.com/ahrav/go-tally/internal/ports"
)

func TestDefaultUnitRegistry_SupportedTypes(t *testing.T) {
	registry := NewDefaultUnitRegistry()
	assert.Equal(t,
		[]string{UnitTypeBallotParser, UnitTypeResultProjector, UnitTypeSTVHareClark},
		registry.GetSupportedTypes())
}

func TestDefaultUnitRegistry_CreateUnit(t *testing.T) {
	registry := NewDefaultUnitRegistry()

	tests := []struct {
		name     string
		unitType string
		id       string
		config   map[string]any
		check    func(t *testing.T, u ports.Unit)
		wantErr  string
	}{
		{
			name:     "ballot parser with overrides",
			unitType: UnitTypeBallotParser,
			id:       "parser",
			config:   map[string]any{"parse_concurrency": 2},
			check: func(t *testing.T, u ports.Unit) {
				assert.IsType(t, &units.BallotParserUnit{}, u)
			},
		},
		{
			name:     "round engine with defaults",
			unitType: UnitTypeSTVHareClark,
			id:       "stv",
			check: func(t *testing.T, u ports.Unit) {
				tallier, ok := u.(interface{ ID() string })
				require.True(t, ok)
				assert.Equal(t, units.STVHareClarkID, tallier.ID())
			},
		},
		{
			name:     "result projector",
			unitType: UnitTypeResultProjector,
			id:       "projector",
			config:   map[string]any{"include_decisions": false},
			check: func(t *testing.T, u ports.Unit) {
				assert.Equal(t, "projector", u.Name())
			},
		},
		{name: "unknown type", unitType: "score_judge", id: "x", wantErr: "unsupported unit type"},
		{name: "empty id", unitType: UnitTypeSTVHareClark, id: "", wantErr: "unit ID cannot be empty"},
		{
			name:     "invalid parameters",
			unitType: UnitTypeBallotParser,
			id:       "parser",
			config:   map[string]any{"parse_concurrency": 0},
			wantErr:  "failed to create unit parser of type ballot_parser",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := registry.CreateUnit(tt.unitType, tt.id, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, u.Validate())
			tt.check(t, u)
		})
	}
}

func TestDefaultUnitRegistry_RegisterUnitFactory(t *testing.T) {
	registry := NewDefaultUnitRegistry()

	assert.Error(t, registry.RegisterUnitFactory("", units.NewSTVHareClarkFromConfig))
	assert.Error(t, registry.RegisterUnitFactory("x", nil))

	require.NoError(t, registry.RegisterUnitFactory("stv_raw_labels", func(id string, config map[string]any) (ports.Unit, error) {
		config["label_normalization"] = string(units.LabelsRaw)
		return units.NewSTVHareClarkFromConfig(id, config)
	}))
	assert.Contains(t, registry.GetSupportedTypes(), "stv_raw_labels")

	u, err := registry.CreateUnit("stv_raw_labels", "raw", nil)
	require.NoError(t, err)
	assert.Equal(t, "raw", u.Name())
}
