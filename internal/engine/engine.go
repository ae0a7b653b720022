// Package engine provides HTTP clients for the external inference engines:
// speech-to-text, diarization, and LLM summarization. All samples cross the
// wire as little-endian float32 PCM at the pipeline sample rate.
package engine

import (
	"encoding/binary"
	"math"
)

// Turn is one diarized time span attributed to a speaker label.
type Turn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"` // seconds within the analyzed window
	End     float64 `json:"end"`
}

// Diarization is the per-window result: speaker turns plus one embedding
// per detected label. Scoped to the single window passed in; never persisted.
type Diarization struct {
	Turns      []Turn               `json:"segments"`
	Embeddings map[string][]float32 `json:"embeddings"`
}

// Summary is the post-meeting document produced by the LLM.
type Summary struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

// Float32ToBytes converts samples to little-endian bytes for the wire.
func Float32ToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// BytesToFloat32 is the inverse of Float32ToBytes. Trailing partial words
// are dropped.
func BytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}
