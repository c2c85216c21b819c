// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

const unitCelsius = "°C"

func temperature(name string, offset int) FieldSpec {
	return FieldSpec{
		Name:     name,
		Packet:   PacketStandard,
		Offset:   offset,
		Encoding: EncodingRaw,
		Bias:     -128,
		Unit:     unitCelsius,
		Class:    ClassTemperature,
		SkipZero: true,
	}
}

func settableTemperature(name string, offset int, min, max float64) FieldSpec {
	f := temperature(name, offset)
	f.Writable = true
	f.SettingOffset = offset
	f.Min = min
	f.Max = max
	return f
}

func linear(name string, offset int, bias, scale float64, unit, class string) FieldSpec {
	return FieldSpec{
		Name:     name,
		Packet:   PacketStandard,
		Offset:   offset,
		Encoding: EncodingRaw,
		Bias:     bias,
		Scale:    scale,
		Unit:     unit,
		Class:    class,
		SkipZero: true,
	}
}

// keepZero marks a raw zero as a real reading
func keepZero(f FieldSpec) FieldSpec {
	f.SkipZero = false
	return f
}

func energy(name string, offset int) FieldSpec {
	return FieldSpec{
		Name:         name,
		Packet:       PacketExtra,
		Offset:       offset,
		Width:        2,
		Encoding:     EncodingUnsigned,
		LittleEndian: true,
		Unit:         "W",
		Class:        ClassPower,
	}
}

// DefaultFields returns the standard Aquarea field table
func DefaultFields() []FieldSpec {
	return []FieldSpec{
		{
			Name:     "hp_status",
			Packet:   PacketStandard,
			Offset:   4,
			Encoding: EncodingEnum,
			Labels: []EnumEntry{
				{0x55, "Off"},
				{0x56, "On"},
				{0x96, "Force DHW"},
				{0x65, "Service: Water pump"},
				{0x75, "Service: Air purge"},
				{0xF0, "Service: Pump down"},
			},
			Class:         ClassState,
			Writable:      true,
			SettingOffset: 4,
			WriteMap:      []uint8{1, 2},
			WriteLabels:   []string{"Off", "On"},
			Min:           0,
			Max:           1,
		},
		{
			Name:      "operating_mode",
			Packet:    PacketStandard,
			Offset:    6,
			Encoding:  EncodingEnum,
			BitOffset: 4,
			BitLength: 4,
			Labels: []EnumEntry{
				{0x1, "DHW only"},
				{0x2, "Heat"},
				{0x3, "Cool"},
				{0x5, "Heat"},
				{0x6, "Heat"},
				{0x7, "Cool"},
				{0x9, "Auto(Heat)"},
				{0xA, "Auto(Cool)"},
			},
			Class:         ClassState,
			SkipZero:      true,
			Writable:      true,
			SettingOffset: 6,
			WriteMap:      []uint8{18, 19, 24, 33, 34, 35, 40},
			WriteLabels:   []string{"Heat", "Cool", "Auto", "DHW", "Heat+DHW", "Cool+DHW", "Auto+DHW"},
			Min:           0,
			Max:           6,
		},
		{
			Name:      "dhw_active",
			Packet:    PacketStandard,
			Offset:    6,
			Encoding:  EncodingEnum,
			BitOffset: 2,
			BitLength: 2,
			Labels:    []EnumEntry{{0x1, "Off"}, {0x2, "On"}},
			Class:     ClassState,
		},
		{
			Name:      "zone1_active",
			Packet:    PacketStandard,
			Offset:    6,
			Encoding:  EncodingBits,
			BitOffset: 1,
			BitLength: 1,
			Class:     ClassState,
		},
		{
			Name:      "zone2_active",
			Packet:    PacketStandard,
			Offset:    6,
			Encoding:  EncodingBits,
			BitOffset: 0,
			BitLength: 1,
			Class:     ClassState,
		},
		{
			Name:      "quiet_mode",
			Packet:    PacketStandard,
			Offset:    7,
			Encoding:  EncodingEnum,
			BitOffset: 3,
			BitLength: 5,
			Labels: []EnumEntry{
				{0x09, "Off"},
				{0x0A, "Level 1"},
				{0x0B, "Level 2"},
				{0x0C, "Level 3"},
				{0x11, "Scheduled"},
			},
			Class:         ClassState,
			SkipZero:      true,
			Writable:      true,
			SettingOffset: 7,
			WriteMap:      []uint8{8, 16, 24, 32},
			WriteLabels:   []string{"Off", "Level 1", "Level 2", "Level 3"},
			Min:           0,
			Max:           3,
		},
		{
			Name:           "zone1_room_temp",
			Packet:         PacketStandard,
			Offset:         10,
			FractionOffset: 11,
			Encoding:       EncodingFixedPoint,
			SignSentinel:   0x7F,
			Unit:           unitCelsius,
			Class:          ClassTemperature,
			SkipZero:       true,
		},
		settableTemperature("zone1_heat_target_temp", 38, 20, 65),
		settableTemperature("dhw_target_temp", 42, 40, 75),
		{
			Name:      "defrost_active",
			Packet:    PacketStandard,
			Offset:    111,
			Encoding:  EncodingEnum,
			BitOffset: 2,
			BitLength: 2,
			Labels:    []EnumEntry{{0x1, "Inactive"}, {0x2, "Active"}},
			Class:     ClassState,
			SkipZero:  true,
		},
		{
			Name:      "three_way_valve",
			Packet:    PacketStandard,
			Offset:    111,
			Encoding:  EncodingEnum,
			BitOffset: 0,
			BitLength: 2,
			Labels:    []EnumEntry{{0x1, "Room"}, {0x2, "DHW"}},
			Class:     ClassState,
			SkipZero:  true,
		},
		keepZero(linear("water_pressure", 125, -1, 0.02, "bar", ClassPressure)),
		temperature("zone1_actual_temp", 139),
		temperature("dhw_actual_temp", 141),
		temperature("outdoor_temp", 142),
		temperature("inlet_water_temp", 143),
		temperature("outlet_water_temp", 144),
		temperature("zone1_target_temp", 147),
		temperature("discharge_temp", 155),
		temperature("indoor_piping_temp", 157),
		temperature("outdoor_piping_temp", 158),
		temperature("defrost_temp", 159),
		temperature("eva_outlet_temp", 160),
		temperature("bypass_outlet_temp", 161),
		temperature("ipm_temp", 162),
		linear("high_pressure", 163, -1, 0.196133, "bar", ClassPressure),
		keepZero(linear("low_pressure", 164, -1, 0.196133, "bar", ClassPressure)),
		linear("compressor_frequency", 166, -1, 1, "Hz", ClassFrequency),
		{
			Name:           "pump_flow_rate",
			Packet:         PacketStandard,
			Offset:         170,
			FractionOffset: 169,
			Encoding:       EncodingFixedPoint,
			Divisor:        256,
			FractionBias:   1,
			Unit:           "L/min",
			Class:          ClassFlow,
			SkipZero:       true,
		},
		linear("pump_speed", 171, -1, 50, "RPM", ClassSpeed),
		linear("fan1_motor_speed", 173, -1, 10, "RPM", ClassSpeed),
		linear("hp_power", 191, -1, 1, "kW", ClassPower),
		energy("heat_power_consumption", 14),
		energy("cool_power_consumption", 16),
		energy("dhw_power_consumption", 18),
		energy("heat_power_generation", 20),
		energy("cool_power_generation", 22),
		energy("dhw_power_generation", 24),
	}
}

// DefaultRegistry returns a registry over DefaultFields.
// It panics if the built-in table is inconsistent.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultFields())
	if err != nil {
		panic(err)
	}
	return r
}
