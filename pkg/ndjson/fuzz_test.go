// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ndjson

import (
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

// randomStream builds a byte stream of random-length segments, each terminated by '\n'.
// Returns the stream and the segments expected to be delivered.
func randomStream(rng *rand.Rand) ([]byte, []string) {
	var stream []byte
	var expected []string

	segments := rng.Intn(20) + 1
	for i := 0; i < segments; i++ {
		length := rng.Intn(MaxLineSize * 2)
		segment := make([]byte, length)
		for j := range segment {
			// printable ASCII, never a terminator
			segment[j] = byte(' ' + rng.Intn(95))
		}
		stream = append(stream, segment...)
		stream = append(stream, LineFeed)

		if length > 0 && length <= MaxLineSize {
			expected = append(expected, string(segment))
		}
	}

	return stream, expected
}

func TestFuzz_LineDecoderRandomStreams(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		stream, expected := randomStream(rng)

		d := NewLineDecoder()
		var got []string

		// Feed in random chunk sizes to exercise partial delivery
		for offset := 0; offset < len(stream); {
			n := rng.Intn(64) + 1
			if offset+n > len(stream) {
				n = len(stream) - offset
			}
			d.Feed(stream[offset:offset+n], func(line []byte) {
				got = append(got, string(line))
			})
			offset += n
		}

		if len(got) != len(expected) {
			t.Fatalf("round %d: delivered %d lines, want %d", round, len(got), len(expected))
		}
		for i := range got {
			if len(got[i]) > MaxLineSize {
				t.Fatalf("round %d: line %d exceeds cap (%d bytes)", round, i, len(got[i]))
			}
			if got[i] != expected[i] {
				t.Fatalf("round %d: line %d mismatch", round, i)
			}
		}
	}
}

func TestFuzz_DecodeCommandNeverPanics(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		data := make([]byte, rng.Intn(64))
		rng.Read(data)

		cmd, err := DecodeCommand(data)
		if err == nil {
			if verr := cmd.Validate(); verr != nil {
				t.Fatalf("round %d: decoded command fails validation: %v", round, verr)
			}
		}
	}
}
