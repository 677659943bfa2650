package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/movers/internal/contracts"
)

func TestDefault(t *testing.T) {
	u := Default()

	assert.Equal(t, DefaultName, u.Name())
	assert.Equal(t, len(defaultInstruments), u.Count())
	assert.Equal(t, 0, u.Position("ABEV3.SA"))
	assert.True(t, u.Contains("PETR4.SA"))
}

func TestParse(t *testing.T) {
	u, err := Parse([]byte(`
name: scenario
instruments:
  - aaa
  - BBB
  - " CCC "
`))
	require.NoError(t, err)

	assert.Equal(t, "scenario", u.Name())
	assert.Equal(t, []contracts.InstrumentID{"AAA", "BBB", "CCC"}, u.Instruments())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "name: x\ninstruments: [AAA]\nweights: [1]\n"},
		{"missing name", "instruments: [AAA]\n"},
		{"no instruments", "name: x\ninstruments: []\n"},
		{"bad symbol", "name: x\ninstruments: ['PETR 4']\n"},
		{"duplicate", "name: x\ninstruments: [AAA, aaa]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	u, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, u.Name())

	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: file\ninstruments: [VALE3.SA]\n"), 0o644))

	u, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, "file", u.Name())

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestHash_Deterministic(t *testing.T) {
	a, err := Parse([]byte("name: x\ninstruments: [AAA, BBB]\n"))
	require.NoError(t, err)
	b, err := Parse([]byte("name: x\ninstruments: [AAA, BBB]\n"))
	require.NoError(t, err)
	c, err := Parse([]byte("name: x\ninstruments: [BBB, AAA]\n"))
	require.NoError(t, err)

	assert.Len(t, Hash(a), 64)
	assert.Equal(t, Hash(a), Hash(b))
	assert.NotEqual(t, Hash(a), Hash(c), "order is part of the universe identity")
}
