// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

// statusFrame builds a sealed 203-byte status frame with the given bytes set
func statusFrame(packet byte, set map[int]byte) []byte {
	frame := make([]byte, StatusFrameLength)
	frame[0] = HeaderQuery
	frame[1] = LengthByteStatus
	frame[2] = destinationByte
	frame[3] = packet
	for off, b := range set {
		frame[off] = b
	}
	Seal(frame)
	return frame
}

func mustReading(t *testing.T, s *Status, field string) Reading {
	t.Helper()
	r, ok := s.Get(field)
	require.True(t, ok, "reading %s missing", field)
	return r
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", []byte{}, 0x00},
		{"single", []byte{0x42}, 0x42},
		{"wraps", []byte{0xFF, 0x02}, 0x01},
		{"query header", []byte{0x71, 0x6C, 0x01, 0x10}, 0xEE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.expected {
				t.Errorf("Checksum() = 0x%02X, want 0x%02X", got, tt.expected)
			}
		})
	}
}

func TestQueryFrame(t *testing.T) {
	frame := QueryFrame(PacketStandard)

	if len(frame) != CommandFrameLength {
		t.Fatalf("query length = %d, want %d", len(frame), CommandFrameLength)
	}
	if frame[0] != HeaderQuery || frame[1] != LengthByteCommand || frame[2] != 0x01 || frame[3] != PacketStandard {
		t.Errorf("unexpected header % X", frame[:4])
	}
	for i := 4; i < CommandFrameLength-1; i++ {
		if frame[i] != 0 {
			t.Fatalf("byte %d = 0x%02X, want 0", i, frame[i])
		}
	}
	if frame[CommandFrameLength-1] != 0xEE {
		t.Errorf("checksum = 0x%02X, want 0xEE", frame[CommandFrameLength-1])
	}
	if err := Validate(frame); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	extra := QueryFrame(PacketExtra)
	if extra[3] != PacketExtra {
		t.Errorf("extra packet type = 0x%02X", extra[3])
	}
}

func TestValidate_Errors(t *testing.T) {
	good := statusFrame(PacketStandard, nil)

	corrupt := append([]byte(nil), good...)
	corrupt[50] ^= 0x01

	short := good[:150]

	unknown := append([]byte(nil), good...)
	unknown[0] = 0x42

	var checksumErr *ChecksumError
	var lengthErr *FrameLengthError

	require.NoError(t, Validate(good))

	err := Validate(corrupt)
	require.ErrorAs(t, err, &checksumErr)
	assert.Equal(t, good[len(good)-1], checksumErr.Got)

	err = Validate(short)
	require.ErrorAs(t, err, &lengthErr)
	assert.Equal(t, StatusFrameLength, lengthErr.Want)
	assert.Equal(t, 150, lengthErr.Got)

	err = Validate(unknown)
	require.ErrorAs(t, err, &lengthErr)
	assert.Equal(t, 0, lengthErr.Want)

	require.ErrorAs(t, Validate(nil), &lengthErr)
}

// ============================================================
// Decode Tests
// ============================================================

func TestDecode_FixedPointRoomTemperature(t *testing.T) {
	codec := NewCodec(DefaultRegistry())
	frame := statusFrame(PacketStandard, map[int]byte{10: 0x16, 11: 0x05})

	status, err := codec.Decode(frame)
	require.NoError(t, err)

	r := mustReading(t, status, "zone1_room_temp")
	assert.InDelta(t, 22.5, r.Value.Number, 1e-9)
	assert.Equal(t, "22.5", r.Value.String())
	assert.Equal(t, "°C", r.Unit)
}

func TestDecode_FixedPointSign(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	tests := []struct {
		name     string
		whole    byte
		fraction byte
		expected float64
	}{
		{"positive", 0x03, 0x05, 3.5},
		{"negative", 0x03, 0x85, -3.5},
		{"sentinel is positive", 0x01, 0x7F, 1 + 127.0/10},
		{"just above sentinel", 0x02, 0x80, -2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := codec.Decode(statusFrame(PacketStandard, map[int]byte{10: tt.whole, 11: tt.fraction}))
			require.NoError(t, err)
			r := mustReading(t, status, "zone1_room_temp")
			assert.InDelta(t, tt.expected, r.Value.Number, 1e-9)
		})
	}
}

func TestDecode_StandardFields(t *testing.T) {
	codec := NewCodec(DefaultRegistry())
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	frame := statusFrame(PacketStandard, map[int]byte{
		4:   0x56,         // hp_status On
		6:   0x2A,         // Heat, DHW on, zone 1 on
		7:   0x58,         // quiet level 2
		42:  0x80 + 50,    // dhw target 50
		142: 0x80 + 5,     // outdoor 5
		166: 46,           // 45 Hz
		169: 129,          // flow fraction
		170: 12,           // flow integer
		171: 41,           // 2000 RPM
		125: 76,           // 1.5 bar
		111: 0b1001,       // defrost active, valve room
		163: 0x80 + 0x0B,  // high pressure
	})

	status, err := codec.DecodeAt(frame, at)
	require.NoError(t, err)
	assert.Equal(t, uint8(PacketStandard), status.Packet)
	assert.Equal(t, at, status.Timestamp)

	tests := []struct {
		field string
		want  string
	}{
		{"hp_status", "On"},
		{"operating_mode", "Heat"},
		{"dhw_active", "On"},
		{"zone1_active", "1"},
		{"zone2_active", "0"},
		{"quiet_mode", "Level 2"},
		{"dhw_target_temp", "50"},
		{"outdoor_temp", "5"},
		{"compressor_frequency", "45"},
		{"pump_flow_rate", "12.5"},
		{"pump_speed", "2000"},
		{"water_pressure", "1.5"},
		{"defrost_active", "Active"},
		{"three_way_valve", "Room"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			r := mustReading(t, status, tt.field)
			assert.Equal(t, tt.want, r.Value.String())
			assert.Equal(t, at, r.Timestamp)
		})
	}

	// Zero bytes mean "no data" for skip-zero fields
	_, ok := status.Get("inlet_water_temp")
	assert.False(t, ok)
}

func TestDecode_EnumUnknownValue(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	status, err := codec.Decode(statusFrame(PacketStandard, map[int]byte{4: 0x8A}))
	require.NoError(t, err)

	r := mustReading(t, status, "hp_status")
	assert.True(t, r.Value.Unknown)
	assert.Equal(t, uint64(0x8A), r.Value.Raw)
	assert.Equal(t, "Unknown(0x8A)", r.Value.String())
}

func TestDecode_ImplausibleTemperature(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	status, err := codec.Decode(statusFrame(PacketStandard, map[int]byte{142: 0x80 + 120}))
	require.NoError(t, err)

	_, ok := status.Get("outdoor_temp")
	assert.False(t, ok)
	require.Len(t, status.Anomalies, 1)
	assert.Equal(t, "outdoor_temp", status.Anomalies[0].Field)
	assert.Equal(t, 120.0, status.Anomalies[0].Value)
}

func TestDecode_ExtraPacketLittleEndian(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	status, err := codec.Decode(statusFrame(PacketExtra, map[int]byte{14: 0x10, 15: 0x27, 20: 0x01}))
	require.NoError(t, err)
	assert.Equal(t, uint8(PacketExtra), status.Packet)

	assert.Equal(t, 10000.0, mustReading(t, status, "heat_power_consumption").Value.Number)
	assert.Equal(t, 1.0, mustReading(t, status, "heat_power_generation").Value.Number)
	assert.Equal(t, 0.0, mustReading(t, status, "cool_power_consumption").Value.Number)

	// Standard fields are not decoded from extra packets
	_, ok := status.Get("outdoor_temp")
	assert.False(t, ok)
}

func TestDecode_ByteOrderAndSign(t *testing.T) {
	reg, err := NewRegistry([]FieldSpec{
		{Name: "be", Packet: PacketStandard, Offset: 20, Width: 2, Encoding: EncodingUnsigned},
		{Name: "le", Packet: PacketStandard, Offset: 20, Width: 2, Encoding: EncodingUnsigned, LittleEndian: true},
		{Name: "signed", Packet: PacketStandard, Offset: 30, Encoding: EncodingSigned},
		{Name: "scaled", Packet: PacketStandard, Offset: 31, Encoding: EncodingSigned, Scale: 0.5},
	})
	require.NoError(t, err)

	status, err := NewCodec(reg).Decode(statusFrame(PacketStandard, map[int]byte{20: 0x01, 21: 0x02, 30: 0xFE, 31: 0x81}))
	require.NoError(t, err)

	assert.Equal(t, 258.0, mustReading(t, status, "be").Value.Number)
	assert.Equal(t, 513.0, mustReading(t, status, "le").Value.Number)
	assert.Equal(t, -2.0, mustReading(t, status, "signed").Value.Number)
	assert.Equal(t, -63.5, mustReading(t, status, "scaled").Value.Number)
}

func TestDecode_RejectsBadFrames(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	t.Run("checksum", func(t *testing.T) {
		frame := statusFrame(PacketStandard, map[int]byte{10: 0x16, 11: 0x05})
		frame[11] = 0x06
		status, err := codec.Decode(frame)
		var checksumErr *ChecksumError
		require.ErrorAs(t, err, &checksumErr)
		assert.Nil(t, status)
	})

	t.Run("query length", func(t *testing.T) {
		status, err := codec.Decode(QueryFrame(PacketStandard))
		var lengthErr *FrameLengthError
		require.ErrorAs(t, err, &lengthErr)
		assert.Equal(t, StatusFrameLength, lengthErr.Want)
		assert.Nil(t, status)
	})

	t.Run("unknown packet", func(t *testing.T) {
		status, err := codec.Decode(statusFrame(0x33, nil))
		require.ErrorIs(t, err, ErrUnknownPacket)
		assert.Nil(t, status)
	})
}

// ============================================================
// Encode Tests
// ============================================================

func TestEncode_DHWTargetTemperature(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	frame, err := codec.Encode("dhw_target_temp", 60)
	require.NoError(t, err)
	require.Len(t, frame, CommandFrameLength)

	assert.Equal(t, []byte{0xF1, 0x6C, 0x01, 0x10}, frame[:4])
	assert.Equal(t, byte(188), frame[42])
	assert.Equal(t, byte(0x2A), frame[CommandFrameLength-1])

	for i := 4; i < CommandFrameLength-1; i++ {
		if i != 42 && frame[i] != 0 {
			t.Errorf("byte %d = 0x%02X, want unchanged marker", i, frame[i])
		}
	}
	require.NoError(t, Validate(frame))
}

func TestEncode_UserMax(t *testing.T) {
	reg, err := DefaultRegistry().WithLimits(map[string]float64{"dhw_target_temp": 60})
	require.NoError(t, err)
	codec := NewCodec(reg)

	_, err = codec.Encode("dhw_target_temp", 60)
	require.NoError(t, err)

	_, err = codec.Encode("dhw_target_temp", 61)
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.True(t, rangeErr.UserLimit)
	assert.Equal(t, 60.0, rangeErr.Max)
	assert.Contains(t, rangeErr.Error(), "configured")
}

func TestEncode_RoundedPastUserMax(t *testing.T) {
	reg, err := DefaultRegistry().WithLimits(map[string]float64{"dhw_target_temp": 59.5})
	require.NoError(t, err)
	codec := NewCodec(reg)

	tests := []struct {
		name    string
		value   float64
		wantErr bool
		sent    float64
	}{
		{"rounds up past ceiling", 59.5, true, 0},
		{"rounds up just past ceiling", 59.45, false, 59},
		{"whole step below ceiling", 59, false, 59},
		{"rounds down inside range", 58.6, false, 59},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := codec.Encode("dhw_target_temp", tt.value)
			if tt.wantErr {
				var rangeErr *RangeError
				require.ErrorAs(t, err, &rangeErr)
				assert.Nil(t, frame)
				assert.True(t, rangeErr.UserLimit)
				assert.Equal(t, 59.5, rangeErr.Max)
				assert.Contains(t, rangeErr.Error(), "sent as 60")
				return
			}

			require.NoError(t, err)
			values, err := codec.DecodeSetting(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.sent, values["dhw_target_temp"])
			assert.LessOrEqual(t, values["dhw_target_temp"], 59.5)
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	tests := []struct {
		name  string
		field string
		value float64
		check func(t *testing.T, err error)
	}{
		{"below protocol min", "dhw_target_temp", 39, func(t *testing.T, err error) {
			var e *RangeError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, 40.0, e.Min)
			assert.False(t, e.UserLimit)
		}},
		{"above protocol max", "zone1_heat_target_temp", 66, func(t *testing.T, err error) {
			var e *RangeError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, 65.0, e.Max)
		}},
		{"fractional write index", "quiet_mode", 1.5, func(t *testing.T, err error) {
			var e *RangeError
			require.ErrorAs(t, err, &e)
			assert.NotEmpty(t, e.Reason)
		}},
		{"read only", "outdoor_temp", 10, func(t *testing.T, err error) {
			var e *UnwritableFieldError
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "outdoor_temp", e.Field)
		}},
		{"unknown", "boost", 1, func(t *testing.T, err error) {
			var e *UnknownFieldError
			require.ErrorAs(t, err, &e)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := codec.Encode(tt.field, tt.value)
			require.Error(t, err)
			assert.Nil(t, frame)
			tt.check(t, err)
		})
	}
}

func TestEncode_WriteMaps(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	tests := []struct {
		field  string
		value  float64
		offset int
		raw    byte
	}{
		{"hp_status", 0, 4, 1},
		{"hp_status", 1, 4, 2},
		{"operating_mode", 0, 6, 18},
		{"operating_mode", 6, 6, 40},
		{"quiet_mode", 0, 7, 8},
		{"quiet_mode", 3, 7, 32},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			frame, err := codec.Encode(tt.field, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, frame[tt.offset])
		})
	}
}

func TestParseWriteValue(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	v, err := codec.ParseWriteValue("quiet_mode", "level 2")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = codec.ParseWriteValue("hp_status", "ON")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = codec.ParseWriteValue("dhw_target_temp", " 45.0 ")
	require.NoError(t, err)
	assert.Equal(t, 45.0, v)

	_, err = codec.ParseWriteValue("quiet_mode", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Level 1")

	_, err = codec.ParseWriteValue("outdoor_temp", "3")
	var unwritable *UnwritableFieldError
	require.ErrorAs(t, err, &unwritable)

	for _, text := range []string{"NaN", "Inf", "-inf", "+Infinity"} {
		_, err = codec.ParseWriteValue("dhw_target_temp", text)
		var rangeErr *RangeError
		require.ErrorAs(t, err, &rangeErr, text)
		assert.Contains(t, rangeErr.Error(), "finite", text)
	}
}

func TestDecodeSetting(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	frame, err := codec.Encode("quiet_mode", 2)
	require.NoError(t, err)

	values, err := codec.DecodeSetting(frame)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"quiet_mode": 2}, values)

	_, err = codec.DecodeSetting(QueryFrame(PacketStandard))
	require.ErrorIs(t, err, ErrNotSetting)

	_, err = codec.DecodeSetting(statusFrame(PacketStandard, nil))
	var lengthErr *FrameLengthError
	require.ErrorAs(t, err, &lengthErr)

	frame[50] = 0x01
	_, err = codec.DecodeSetting(frame)
	var checksumErr *ChecksumError
	require.True(t, errors.As(err, &checksumErr))
}

// ============================================================
// Formatter and Statistics Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	at := time.Date(2025, 1, 1, 8, 30, 15, 250_000_000, time.UTC)

	line := FormatFrame(statusFrame(PacketStandard, nil), at)
	assert.Equal(t, "[08:30:15.250] STATUS (0x71) packet=STANDARD (0x10) len=203\n", line)

	line = FormatFrame(QueryFrame(PacketExtra), at)
	assert.True(t, strings.HasPrefix(line, "[08:30:15.250] QUERY (0x71) packet=EXTRA (0x21)"))
}

func TestFormatSetting(t *testing.T) {
	reg := DefaultRegistry()
	out := FormatSetting(reg, map[string]float64{"quiet_mode": 1, "dhw_target_temp": 48})
	assert.Equal(t, "  dhw_target_temp -> 48 °C\n  quiet_mode -> Level 1 (1)\n", out)
}

func TestStatistics_Update(t *testing.T) {
	codec := NewCodec(DefaultRegistry())
	stats := NewStatistics()

	good := statusFrame(PacketStandard, map[int]byte{142: 0x80 + 120})
	status, err := codec.Decode(good)
	stats.Update(good, err, status)

	bad := append([]byte(nil), good...)
	bad[20] ^= 0x10
	_, err = codec.Decode(bad)
	stats.Update(bad, err, nil)

	stats.Update(good[:10], Validate(good[:10]), nil)

	query := QueryFrame(PacketStandard)
	stats.Update(query, Validate(query), nil)

	assert.Equal(t, uint64(4), stats.TotalFrames)
	assert.Equal(t, uint64(2), stats.ValidFrames)
	assert.Equal(t, uint64(1), stats.StatusFrames)
	assert.Equal(t, uint64(1), stats.QueryFrames)
	assert.Equal(t, uint64(1), stats.ChecksumErrors)
	assert.Equal(t, uint64(1), stats.LengthErrors)
	assert.Equal(t, uint64(1), stats.AnomalousValues)
	assert.Contains(t, stats.String(), "Checksum Errors:")

	stats.Reset()
	assert.Equal(t, uint64(0), stats.TotalFrames)
}
