package pipeline

import "testing"

func TestSelectChunk(t *testing.T) {
	tests := []struct {
		name      string
		cursor    int
		length    int
		wantOK    bool
		wantStart int
		wantEnd   int
	}{
		{
			// 16.5k new samples past the cursor, 1s overlap in front.
			name:   "new audio with overlap",
			cursor: 100_000, length: 116_500,
			wantOK: true, wantStart: 84_000, wantEnd: 116_500,
		},
		{
			// Under a second of new audio: skip, cursor untouched.
			name:   "below minimum new audio",
			cursor: 100_000, length: 115_000,
			wantOK: false,
		},
		{
			name:   "first pass from empty cursor",
			cursor: 0, length: 20_000,
			wantOK: true, wantStart: 0, wantEnd: 20_000,
		},
		{
			// Overlap would reach before the buffer start; clamp to 0.
			name:   "overlap clamped at buffer start",
			cursor: 8_000, length: 40_000,
			wantOK: true, wantStart: 0, wantEnd: 40_000,
		},
		{
			name:   "exactly minimum new audio",
			cursor: 50_000, length: 50_000 + minNewSamples,
			wantOK: true, wantStart: 50_000 - overlapSamples, wantEnd: 50_000 + minNewSamples,
		},
		{
			name:   "no audio at all",
			cursor: 0, length: 0,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, ok := selectChunk(tt.cursor, tt.length)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if span.start != tt.wantStart || span.end != tt.wantEnd {
				t.Fatalf("span = [%d,%d), want [%d,%d)",
					span.start, span.end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestContextSize(t *testing.T) {
	if got := contextSize(2 * contextWindowSamples); got != contextWindowSamples {
		t.Fatalf("contextSize = %d, want %d", got, contextWindowSamples)
	}
	if got := contextSize(1000); got != 1000 {
		t.Fatalf("contextSize = %d, want whole short buffer", got)
	}
}
