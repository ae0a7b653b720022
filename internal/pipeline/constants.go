package pipeline

// Audio geometry. All sample counts assume mono 16 kHz float input.
const (
	// SampleRate is the fixed pipeline rate; the capture layer resamples
	// to it before pushing.
	SampleRate = 16000

	// overlapSamples is re-fed in front of every transcription span so
	// words straddling a flush boundary are not truncated. The ASR engine
	// is expected to be idempotent on repeated leading context.
	overlapSamples = SampleRate // 1s

	// minNewSamples is the smallest amount of genuinely new audio worth
	// an inference call. Sub-second deltas are skipped entirely.
	minNewSamples = SampleRate // 1s

	// contextWindowSamples is the trailing window handed to the diarizer:
	// "who is talking right now", independent of the flush cursor.
	contextWindowSamples = 5 * SampleRate

	// maxAccumulatorSamples caps accumulator retention so long meetings
	// run in constant peak memory.
	maxAccumulatorSamples = 3_600_000

	// batchWindowSamples is the fixed window for offline import. No
	// overlap between windows; word loss at the boundaries is an accepted
	// simplification for non-real-time import.
	batchWindowSamples = 30 * SampleRate
)

// Speaker identification.
const (
	// normalizationPeak is the target peak amplitude before embedding
	// extraction, matching the normalization applied at enrollment.
	normalizationPeak = 0.9

	// maxGain bounds the normalization factor so near-silent windows are
	// not blown up into noise.
	maxGain = 100.0

	// defaultMatchFloor is the minimum cosine similarity to accept an
	// enrolled profile. A defensive minimum rather than a tuned
	// threshold; override via config.
	defaultMatchFloor = 0.05
)

// eventBufferSize is the transcript event channel capacity; sends are
// non-blocking, a slow consumer drops events rather than stalling a pass.
const eventBufferSize = 100
