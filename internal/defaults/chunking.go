package defaults

import "time"

const (
	// ChunkSize is the maximum size of one chunk's blob slice before it is
	// split across multiple outer envelopes (spec §4.2).
	ChunkSize = 16 * 1024
	// MaxPayloadSize is the hard cap on one outer envelope's serialized
	// params; exceeding it is a fatal send error (spec §4.2).
	MaxPayloadSize = 32 * 1024
	// ChunkPace is the pacing delay between successive chunk sends, to
	// avoid overloading the relay (spec §4.2: "~50 ms").
	ChunkPace = 50 * time.Millisecond
)
