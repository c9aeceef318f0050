package air

import (
	"encoding/json"
	"math"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Field identifies one published output of the sensor.
type Field int

const (
	FieldPM1_0 Field = iota
	FieldPM2_5
	FieldPM4_0
	FieldPM10_0
	FieldTemperature
	FieldHumidity
	FieldVOC
)

// Fields lists every output in publishing order.
var Fields = []Field{FieldPM1_0, FieldPM2_5, FieldPM4_0, FieldPM10_0, FieldTemperature, FieldHumidity, FieldVOC}

var fieldNames = map[Field]string{
	FieldPM1_0:       "pm_1_0",
	FieldPM2_5:       "pm_2_5",
	FieldPM4_0:       "pm_4_0",
	FieldPM10_0:      "pm_10_0",
	FieldTemperature: "temperature",
	FieldHumidity:    "humidity",
	FieldVOC:         "voc",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// Unit returns the physical unit the field is published in.
func (f Field) Unit() string {
	switch f {
	case FieldPM1_0, FieldPM2_5, FieldPM4_0, FieldPM10_0:
		return "µg/m³"
	case FieldTemperature:
		return "°C"
	case FieldHumidity:
		return "%RH"
	default:
		return "index"
	}
}

// ParseField maps a field name as used in configuration back to a Field.
func ParseField(name string) (Field, bool) {
	for f, n := range fieldNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// noData is the register value the sensor reports when a value is not available.
const noData = 0xFFFF

// Measurement is one converted measurement block. Missing values are NaN.
type Measurement struct {
	PM1_0       float32   `json:"pm_1_0" yaml:"pm_1_0"`
	PM2_5       float32   `json:"pm_2_5" yaml:"pm_2_5"`
	PM4_0       float32   `json:"pm_4_0" yaml:"pm_4_0"`
	PM10_0      float32   `json:"pm_10_0" yaml:"pm_10_0"`
	VOC         float32   `json:"voc" yaml:"voc"`
	Humidity    float32   `json:"humidity" yaml:"humidity"`
	Temperature float32   `json:"temperature" yaml:"temperature"`
	Time        time.Time `json:"time" yaml:"time"`
}

// Value returns the converted value of the given field.
func (m Measurement) Value(f Field) float32 {
	switch f {
	case FieldPM1_0:
		return m.PM1_0
	case FieldPM2_5:
		return m.PM2_5
	case FieldPM4_0:
		return m.PM4_0
	case FieldPM10_0:
		return m.PM10_0
	case FieldTemperature:
		return m.Temperature
	case FieldHumidity:
		return m.Humidity
	case FieldVOC:
		return m.VOC
	}
	return float32(math.NaN())
}

// Env returns temperature and humidity as periph physical values.
// ok is false when either of them is missing.
func (m Measurement) Env() (env physic.Env, ok bool) {
	if IsMissing(m.Temperature) || IsMissing(m.Humidity) {
		return env, false
	}
	env.Temperature = physic.ZeroCelsius + physic.Temperature(float64(m.Temperature)*float64(physic.Celsius))
	env.Humidity = physic.RelativeHumidity(float64(m.Humidity) * float64(physic.PercentRH))
	return env, true
}

// IsMissing reports whether v is the "no data" marker.
func IsMissing(v float32) bool {
	return math.IsNaN(float64(v))
}

// decodeMeasurement converts the 7-word measurement block:
// PM1.0, PM2.5, PM4.0, PM10.0 (unsigned /10), VOC (signed /10),
// humidity (signed /100), temperature (signed /200).
func decodeMeasurement(raw [7]uint16) Measurement {
	return Measurement{
		PM1_0:       unsignedValue(raw[0], 10),
		PM2_5:       unsignedValue(raw[1], 10),
		PM4_0:       unsignedValue(raw[2], 10),
		PM10_0:      unsignedValue(raw[3], 10),
		VOC:         signedValue(raw[4], 10),
		Humidity:    signedValue(raw[5], 100),
		Temperature: signedValue(raw[6], 200),
	}
}

func unsignedValue(raw uint16, divisor float32) float32 {
	if raw == noData {
		return float32(math.NaN())
	}
	return float32(raw) / divisor
}

func signedValue(raw uint16, divisor float32) float32 {
	if raw == noData {
		return float32(math.NaN())
	}
	return float32(int16(raw)) / divisor
}

// PMValues is the reply of the "read measured PM values" command.
type PMValues struct {
	MassPM1_0   float32 `json:"mass_pm_1_0" yaml:"mass_pm_1_0"`
	MassPM2_5   float32 `json:"mass_pm_2_5" yaml:"mass_pm_2_5"`
	MassPM4_0   float32 `json:"mass_pm_4_0" yaml:"mass_pm_4_0"`
	MassPM10_0  float32 `json:"mass_pm_10_0" yaml:"mass_pm_10_0"`
	NumberPM0_5 float32 `json:"number_pm_0_5" yaml:"number_pm_0_5"`
	NumberPM1_0 float32 `json:"number_pm_1_0" yaml:"number_pm_1_0"`
	NumberPM2_5 float32 `json:"number_pm_2_5" yaml:"number_pm_2_5"`
	NumberPM4_0 float32 `json:"number_pm_4_0" yaml:"number_pm_4_0"`
	NumberPM10  float32 `json:"number_pm_10_0" yaml:"number_pm_10_0"`
	// TypicalSize is the typical particle size in µm.
	TypicalSize float32 `json:"typical_size" yaml:"typical_size"`
}

func decodePMValues(raw [10]uint16) PMValues {
	return PMValues{
		MassPM1_0:   unsignedValue(raw[0], 10),
		MassPM2_5:   unsignedValue(raw[1], 10),
		MassPM4_0:   unsignedValue(raw[2], 10),
		MassPM10_0:  unsignedValue(raw[3], 10),
		NumberPM0_5: unsignedValue(raw[4], 10),
		NumberPM1_0: unsignedValue(raw[5], 10),
		NumberPM2_5: unsignedValue(raw[6], 10),
		NumberPM4_0: unsignedValue(raw[7], 10),
		NumberPM10:  unsignedValue(raw[8], 10),
		TypicalSize: unsignedValue(raw[9], 1000),
	}
}

// MarshalJSON encodes missing values as null.
func (m Measurement) MarshalJSON() ([]byte, error) {
	type wire struct {
		PM1_0       *float32  `json:"pm_1_0"`
		PM2_5       *float32  `json:"pm_2_5"`
		PM4_0       *float32  `json:"pm_4_0"`
		PM10_0      *float32  `json:"pm_10_0"`
		VOC         *float32  `json:"voc"`
		Humidity    *float32  `json:"humidity"`
		Temperature *float32  `json:"temperature"`
		Time        time.Time `json:"time"`
	}
	return json.Marshal(wire{
		PM1_0:       nullable(m.PM1_0),
		PM2_5:       nullable(m.PM2_5),
		PM4_0:       nullable(m.PM4_0),
		PM10_0:      nullable(m.PM10_0),
		VOC:         nullable(m.VOC),
		Humidity:    nullable(m.Humidity),
		Temperature: nullable(m.Temperature),
		Time:        m.Time,
	})
}

func nullable(v float32) *float32 {
	if IsMissing(v) {
		return nil
	}
	return &v
}
