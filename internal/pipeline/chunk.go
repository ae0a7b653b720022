package pipeline

// chunkSpan is a half-open sample range [start, end) to transcribe.
type chunkSpan struct {
	start, end int
}

// selectChunk computes the transcription span for one pass: everything new
// since the cursor plus a fixed leading overlap. Returns false when less
// than a second of genuinely new audio exists — the pass is skipped and the
// cursor left untouched.
func selectChunk(lastFlushIndex, length int) (chunkSpan, bool) {
	if length-lastFlushIndex < minNewSamples {
		return chunkSpan{}, false
	}
	start := lastFlushIndex - overlapSamples
	if start < 0 {
		start = 0
	}
	return chunkSpan{start: start, end: length}, true
}

// contextSize returns the diarization window length: the trailing five
// seconds, or the whole buffer if shorter.
func contextSize(length int) int {
	if length < contextWindowSamples {
		return length
	}
	return contextWindowSamples
}
