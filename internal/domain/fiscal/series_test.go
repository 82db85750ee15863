package fiscal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesFormatNumber(t *testing.T) {
	series := NewSeries("FAC-", 8)

	cases := []struct {
		seq  int64
		want string
	}{
		{1, "FAC-00000001"},
		{42, "FAC-00000042"},
		{99999999, "FAC-99999999"},
		{100000000, "FAC-100000000"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, series.FormatNumber(tc.seq))
	}
}

func TestSeriesParseSequence(t *testing.T) {
	series := NewSeries("FAC-", 8)

	t.Run("valid numbers", func(t *testing.T) {
		seq, ok := series.ParseSequence("FAC-00000042")
		require.True(t, ok)
		assert.EqualValues(t, 42, seq)

		seq, ok = series.ParseSequence("FAC-100000000")
		require.True(t, ok)
		assert.EqualValues(t, 100000000, seq)
	})

	t.Run("rejects malformed numbers", func(t *testing.T) {
		for _, formatted := range []string{
			"NC-00000042",
			"FAC-",
			"FAC-0000004X",
			"FAC-4.2",
			"FAC--0000042",
			"00000042",
			"",
		} {
			_, ok := series.ParseSequence(formatted)
			assert.False(t, ok, formatted)
		}
	})
}

func TestDefaultControlState(t *testing.T) {
	state := DefaultControlState()

	require.Len(t, state.Series, 3)
	assert.Equal(t, "FAC-", state.Series["FACTURA"].Prefix)
	assert.Equal(t, "NC-", state.Series["NOTA_CREDITO"].Prefix)
	assert.Equal(t, "ND-", state.Series["NOTA_DEBITO"].Prefix)
	for key, series := range state.Series {
		assert.EqualValues(t, 1, series.Next, key)
		assert.True(t, series.Active, key)
		assert.False(t, series.Halted, key)
	}
	assert.True(t, state.Config.ValidateConsecutive)
	assert.False(t, state.Config.AllowGaps)
	assert.Equal(t, 8, state.Config.MinWidth)
}

func TestControlStateClone(t *testing.T) {
	state := DefaultControlState()
	clone := state.Clone()

	clone.Series["FACTURA"].Next = 500
	clone.Totals.TotalIssued = 500

	assert.EqualValues(t, 1, state.Series["FACTURA"].Next)
	assert.EqualValues(t, 0, state.Totals.TotalIssued)
}

func TestControlStateJSONTags(t *testing.T) {
	raw, err := json.Marshal(DefaultControlState())
	require.NoError(t, err)

	text := string(raw)
	for _, key := range []string{
		`"series"`,
		`"configuracion"`,
		`"auditoria"`,
		`"prefijo"`,
		`"siguiente_numero"`,
		`"longitud_numero"`,
		`"activa"`,
		`"validar_consecutivos"`,
		`"total_documentos_emitidos"`,
	} {
		assert.Contains(t, text, key)
	}
}
