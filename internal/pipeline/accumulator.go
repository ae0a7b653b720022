package pipeline

// accumulator is the append-only buffer of raw samples every pass reads
// from, plus the cursor marking how far transcription has consumed.
// Invariants: 0 <= lastFlushIndex <= len(samples); len(samples) never
// exceeds maxAccumulatorSamples. Callers hold the pipeline lock.
type accumulator struct {
	samples        []float32
	lastFlushIndex int
}

// append adds samples at the tail and enforces the retention cap.
func (a *accumulator) append(samples []float32) {
	a.samples = append(a.samples, samples...)
	a.trim()
}

// trim drops the oldest excess and shifts the cursor down with it.
func (a *accumulator) trim() {
	excess := len(a.samples) - maxAccumulatorSamples
	if excess <= 0 {
		return
	}
	// Copy down so the backing array does not pin the trimmed prefix.
	copy(a.samples, a.samples[excess:])
	a.samples = a.samples[:maxAccumulatorSamples]

	a.lastFlushIndex -= excess
	if a.lastFlushIndex < 0 {
		a.lastFlushIndex = 0
	}
}

// window returns a copy of the trailing lastN samples, or fewer if the
// buffer is shorter.
func (a *accumulator) window(lastN int) []float32 {
	if lastN > len(a.samples) {
		lastN = len(a.samples)
	}
	out := make([]float32, lastN)
	copy(out, a.samples[len(a.samples)-lastN:])
	return out
}

// slice returns a copy of samples[start:end].
func (a *accumulator) slice(start, end int) []float32 {
	out := make([]float32, end-start)
	copy(out, a.samples[start:end])
	return out
}

// size returns the current sample count.
func (a *accumulator) size() int { return len(a.samples) }

// reset discards all state at meeting start.
func (a *accumulator) reset() {
	a.samples = nil
	a.lastFlushIndex = 0
}
