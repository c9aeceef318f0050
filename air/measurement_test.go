package air

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func TestDecodeMeasurement(t *testing.T) {
	tests := []struct {
		name string
		raw  [7]uint16
		want [7]float32 // PM1.0, PM2.5, PM4.0, PM10.0, VOC, humidity, temperature
		nan  [7]bool
	}{
		{
			name: "voc missing",
			raw:  [7]uint16{10, 25, 40, 100, 0xFFFF, 5000, 4000},
			want: [7]float32{1.0, 2.5, 4.0, 10.0, 0, 50.0, 20.0},
			nan:  [7]bool{4: true},
		},
		{
			name: "negative signed values",
			raw:  [7]uint16{0, 0, 0, 0, 0xFFF6, 0xFF9C, 0xFC18},
			want: [7]float32{0, 0, 0, 0, -1.0, -1.0, -5.0},
		},
		{
			name: "only temperature missing",
			raw:  [7]uint16{1, 2, 3, 4, 5, 6, 0xFFFF},
			want: [7]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.06},
			nan:  [7]bool{6: true},
		},
		{
			name: "all missing",
			raw:  [7]uint16{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF},
			nan:  [7]bool{true, true, true, true, true, true, true},
		},
		{
			name: "unsigned pm above int16 range",
			raw:  [7]uint16{0x8000, 0, 0, 0, 0, 0, 0},
			want: [7]float32{3276.8},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := decodeMeasurement(tt.raw)
			got := [7]float32{m.PM1_0, m.PM2_5, m.PM4_0, m.PM10_0, m.VOC, m.Humidity, m.Temperature}
			for i := range got {
				if tt.nan[i] {
					assert.True(t, IsMissing(got[i]), "index %d", i)
					continue
				}
				assert.InDelta(t, tt.want[i], got[i], 1e-4, "index %d", i)
			}
		})
	}
}

func TestMeasurement_Value(t *testing.T) {
	m := decodeMeasurement([7]uint16{10, 25, 40, 100, 30, 5000, 4000})
	assert.InDelta(t, 2.5, m.Value(FieldPM2_5), 1e-6)
	assert.InDelta(t, 3.0, m.Value(FieldVOC), 1e-6)
	assert.InDelta(t, 20.0, m.Value(FieldTemperature), 1e-6)
	assert.True(t, IsMissing(m.Value(Field(42))))
}

func TestMeasurement_Env(t *testing.T) {
	m := Measurement{Temperature: 20, Humidity: 50}
	env, ok := m.Env()
	require.True(t, ok)
	assert.Equal(t, physic.ZeroCelsius+20*physic.Celsius, env.Temperature)
	assert.Equal(t, 50*physic.PercentRH, env.Humidity)

	m.Humidity = decodeMeasurement([7]uint16{5: 0xFFFF}).Humidity
	_, ok = m.Env()
	assert.False(t, ok)
}

func TestMeasurement_MarshalJSON(t *testing.T) {
	m := decodeMeasurement([7]uint16{10, 25, 40, 100, 0xFFFF, 5000, 4000})
	m.Time = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"pm_1_0": 1, "pm_2_5": 2.5, "pm_4_0": 4, "pm_10_0": 10,
		"voc": null, "humidity": 50, "temperature": 20,
		"time": "2024-05-01T12:00:00Z"
	}`, string(data))
}

func TestField(t *testing.T) {
	for _, f := range Fields {
		parsed, ok := ParseField(f.String())
		require.True(t, ok, f.String())
		assert.Equal(t, f, parsed)
	}
	_, ok := ParseField("co2")
	assert.False(t, ok)
	assert.Equal(t, "µg/m³", FieldPM10_0.Unit())
	assert.Equal(t, "°C", FieldTemperature.Unit())
	assert.Equal(t, "%RH", FieldHumidity.Unit())
	assert.Equal(t, "index", FieldVOC.Unit())
}

func TestDecodePMValues(t *testing.T) {
	pm := decodePMValues([10]uint16{0xFFFF, 20, 30, 40, 50, 60, 70, 80, 90, 0xFFFF})
	assert.True(t, IsMissing(pm.MassPM1_0))
	assert.InDelta(t, 2.0, pm.MassPM2_5, 1e-6)
	assert.InDelta(t, 6.0, pm.NumberPM1_0, 1e-6)
	assert.True(t, IsMissing(pm.TypicalSize))
}
