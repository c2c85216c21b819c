// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aquarea

import (
	"math"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomStatusFrame builds a sealed status frame with a random payload
func randomStatusFrame(rng *rand.Rand) []byte {
	frame := make([]byte, StatusFrameLength)
	rng.Read(frame)
	frame[0] = HeaderQuery
	frame[1] = LengthByteStatus
	frame[2] = destinationByte
	if rng.Intn(2) == 0 {
		frame[3] = PacketStandard
	} else {
		frame[3] = PacketExtra
	}
	Seal(frame)
	return frame
}

// ============================================================
// Round Trip Properties
// ============================================================

func TestRoundTrip_DefaultWritableFields(t *testing.T) {
	codec := NewCodec(DefaultRegistry())

	for _, name := range codec.Registry().Writable() {
		f, _ := codec.Registry().Lookup(name)
		for v := f.Min; v <= f.Max; v++ {
			frame, err := codec.Encode(name, v)
			if err != nil {
				t.Fatalf("Encode(%s, %g) error = %v", name, v, err)
			}
			values, err := codec.DecodeSetting(frame)
			if err != nil {
				t.Fatalf("DecodeSetting(%s, %g) error = %v", name, v, err)
			}
			if len(values) != 1 || values[name] != v {
				t.Fatalf("round trip %s=%g decoded as %v", name, v, values)
			}
		}
	}
}

func TestRoundTrip_CustomEncodings(t *testing.T) {
	reg, err := NewRegistry([]FieldSpec{
		{
			Name: "room_setpoint", Packet: PacketStandard, Offset: 10, FractionOffset: 11,
			Encoding: EncodingFixedPoint, SignSentinel: 0x7F,
			Writable: true, SettingOffset: 20, Min: -20, Max: 40,
		},
		{
			Name: "curve_shift", Packet: PacketStandard, Offset: 30, Encoding: EncodingSigned,
			Writable: true, SettingOffset: 30, Min: -5, Max: 5,
		},
		{
			Name: "energy_cap", Packet: PacketStandard, Offset: 40, Width: 2, Encoding: EncodingUnsigned,
			LittleEndian: true, Writable: true, SettingOffset: 40, Min: 1, Max: 60000,
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	codec := NewCodec(reg)
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	check := func(name string, v, tolerance float64) {
		frame, err := codec.Encode(name, v)
		if err != nil {
			t.Fatalf("Encode(%s, %g) error = %v", name, v, err)
		}
		values, err := codec.DecodeSetting(frame)
		if err != nil {
			t.Fatalf("DecodeSetting(%s, %g) error = %v", name, v, err)
		}
		got, ok := values[name]
		if !ok || math.Abs(got-v) > tolerance {
			t.Fatalf("round trip %s=%g decoded as %v", name, v, values)
		}
	}

	for i := 0; i < rounds; i++ {
		fixed := -20 + rng.Float64()*60
		if math.Abs(fixed) >= 0.1 {
			check("room_setpoint", fixed, 0.1)
		}

		shift := float64(rng.Intn(11) - 5)
		if shift != 0 {
			check("curve_shift", shift, 0)
		}

		check("energy_cap", float64(1+rng.Intn(60000)), 0)
	}
}

// ============================================================
// Corruption Properties
// ============================================================

func TestBitFlip_StatusFrameRejected(t *testing.T) {
	codec := NewCodec(DefaultRegistry())
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		frame := randomStatusFrame(rng)
		if err := Validate(frame); err != nil {
			t.Fatalf("round %d: sealed frame invalid: %v", i, err)
		}

		pos := rng.Intn(len(frame))
		bit := byte(1) << uint(rng.Intn(8))
		frame[pos] ^= bit

		if err := Validate(frame); err == nil {
			t.Fatalf("round %d: flipped bit 0x%02X at byte %d passed validation", i, bit, pos)
		}
		status, err := codec.Decode(frame)
		if err == nil || status != nil {
			t.Fatalf("round %d: flipped bit 0x%02X at byte %d decoded", i, bit, pos)
		}
	}
}

func TestBitFlip_SettingFrameRejected(t *testing.T) {
	codec := NewCodec(DefaultRegistry())
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	frame, err := codec.Encode("zone1_heat_target_temp", 35)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	for i := 0; i < rounds; i++ {
		corrupt := append([]byte(nil), frame...)
		pos := rng.Intn(len(corrupt))
		corrupt[pos] ^= byte(1) << uint(rng.Intn(8))

		if err := Validate(corrupt); err == nil {
			t.Fatalf("round %d: flipped bit at byte %d passed validation", i, pos)
		}
		if values, err := codec.DecodeSetting(corrupt); err == nil {
			t.Fatalf("round %d: flipped bit at byte %d decoded as %v", i, pos, values)
		}
	}
}

func TestDecode_RandomFramesNeverPanic(t *testing.T) {
	codec := NewCodec(DefaultRegistry())
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		size := rng.Intn(StatusFrameLength + 20)
		frame := make([]byte, size)
		rng.Read(frame)
		if size > 1 && rng.Intn(2) == 0 {
			frame[0] = HeaderQuery
			frame[1] = LengthByteStatus
		}
		_, _ = codec.Decode(frame)
		_, _ = codec.DecodeSetting(frame)
	}
}
