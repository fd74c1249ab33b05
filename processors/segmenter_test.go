package processors

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"quizHelper/core"
)

func writeSilentWAV(t *testing.T, path string, rate beep.SampleRate, samples int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	format := beep.Format{SampleRate: rate, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, beep.Silence(samples), format); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
}

func TestPlanSegments(t *testing.T) {
	tests := []struct {
		name       string
		durationMs int64
		lengthMs   int64
		wantEnds   []int64
	}{
		{"150s in 60s segments", 150_000, 60_000, []int64{60_000, 120_000, 150_000}},
		{"exact multiple", 120_000, 60_000, []int64{60_000, 120_000}},
		{"shorter than one segment", 59_999, 60_000, []int64{59_999}},
		{"empty", 0, 60_000, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := PlanSegments(tt.durationMs, tt.lengthMs)
			if len(segs) != len(tt.wantEnds) {
				t.Fatalf("Expected %d segments, got %d", len(tt.wantEnds), len(segs))
			}
			var prevEnd int64
			for i, s := range segs {
				if s.Index != i {
					t.Errorf("Segment %d has index %d", i, s.Index)
				}
				if s.StartMs != prevEnd {
					t.Errorf("Segment %d starts at %d, expected %d", i, s.StartMs, prevEnd)
				}
				if s.EndMs != tt.wantEnds[i] {
					t.Errorf("Segment %d ends at %d, expected %d", i, s.EndMs, tt.wantEnds[i])
				}
				prevEnd = s.EndMs
			}
		})
	}
}

func TestBeepSegmenterSplitsWAV(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "lecture.wav")
	// 2.5 seconds at 8 kHz
	writeSilentWAV(t, source, 8000, 20000)

	s := NewBeepSegmenter(dir, nil)
	segs, err := s.Segment(context.Background(), source, 1000)
	if err != nil {
		t.Fatalf("Segment() failed: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(segs))
	}
	if segs[2].StartMs != 2000 || segs[2].EndMs != 2500 {
		t.Errorf("Unexpected last segment span [%d, %d)", segs[2].StartMs, segs[2].EndMs)
	}

	for _, seg := range segs {
		f, err := os.Open(seg.Path)
		if err != nil {
			t.Fatalf("Segment %d file missing: %v", seg.Index, err)
		}
		streamer, format, err := wav.Decode(f)
		if err != nil {
			f.Close()
			t.Fatalf("Segment %d is not valid WAV: %v", seg.Index, err)
		}
		if format.SampleRate != 16000 || format.NumChannels != 1 {
			t.Errorf("Segment %d format = %+v, expected 16 kHz mono", seg.Index, format)
		}
		if streamer.Len() == 0 {
			t.Errorf("Segment %d is empty", seg.Index)
		}
		streamer.Close()
		f.Close()
	}
	os.RemoveAll(filepath.Dir(segs[0].Path))
}

func TestBeepSegmenterEmptyAudioLeavesNoDir(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "empty.wav")
	writeSilentWAV(t, source, 8000, 0)
	tmp := t.TempDir()

	segs, err := NewBeepSegmenter(tmp, nil).Segment(context.Background(), source, 1000)
	if err != nil {
		t.Fatalf("Segment() failed: %v", err)
	}
	if len(segs) != 0 {
		t.Fatalf("Expected no segments, got %d", len(segs))
	}

	text, err := NewTranscriptionCoordinator(&fileTranscriber{}, 2, 0, nil).Transcribe(context.Background(), segs)
	if err != nil || text != "" {
		t.Errorf("Expected empty transcript, got %q, %v", text, err)
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("Leftover entry %s in temp dir", e.Name())
	}
}

func TestBeepSegmenterDecodeError(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(source, []byte("definitely not audio"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewBeepSegmenter(dir, nil).Segment(context.Background(), source, 1000)
	var decErr *core.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Expected no leftover segment dirs, found %d entries", len(entries))
	}
}

func TestBeepSegmenterMissingFile(t *testing.T) {
	_, err := NewBeepSegmenter(t.TempDir(), nil).Segment(context.Background(), "/nonexistent/audio.mp3", 1000)
	var decErr *core.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
}

func TestNewSegmenter(t *testing.T) {
	for _, kind := range []string{"", "auto", "beep", "ffmpeg"} {
		if _, err := NewSegmenter(kind, "", "", nil); err != nil {
			t.Errorf("NewSegmenter(%q) failed: %v", kind, err)
		}
	}
	if _, err := NewSegmenter("sox", "", "", nil); err == nil {
		t.Error("Expected error for unknown segmenter")
	}
	if _, err := NewSegmenter("auto", "reverb", "", nil); err == nil {
		t.Error("Expected error for unknown filter")
	}
	seg, err := NewSegmenter("auto", "speech", "", nil)
	if err != nil {
		t.Fatalf("NewSegmenter(auto, speech) failed: %v", err)
	}
	if ff, ok := seg.(*FFmpegSegmenter); !ok || ff.Filter != "speech" {
		t.Errorf("Expected filtered ffmpeg segmenter, got %T", seg)
	}

	b := NewBeepSegmenter("", nil)
	if !b.SupportsExtension(".MP3") || b.SupportsExtension(".m4a") {
		t.Error("Unexpected SupportsExtension result")
	}
}

func TestSegmentArgs(t *testing.T) {
	args := segmentArgs("in.m4a", "out.mp3", "", core.AudioSegment{StartMs: 60_000, EndMs: 90_500})
	want := map[string]string{"-ss": "60.000", "-t": "30.500", "-i": "in.m4a", "-ar": "16000"}
	for i := 0; i < len(args)-1; i++ {
		if v, ok := want[args[i]]; ok && args[i+1] != v {
			t.Errorf("%s = %s, expected %s", args[i], args[i+1], v)
		}
	}
	if args[len(args)-1] != "out.mp3" {
		t.Errorf("Output path should come last, got %v", args)
	}
	for _, a := range args {
		if a == "-af" {
			t.Error("No filter expected without a preset")
		}
	}

	args = segmentArgs("in.m4a", "out.mp3", "speech", core.AudioSegment{EndMs: 1000})
	found := false
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-af" && args[i+1] == audioFilters["speech"] {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected speech filter in %v", args)
	}
}

func TestFFmpegSegmenter(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	dir := t.TempDir()
	source := filepath.Join(dir, "lecture.wav")
	writeSilentWAV(t, source, 16000, 40000)

	segs, err := NewFFmpegSegmenter(dir, nil).Segment(context.Background(), source, 1000)
	if err != nil {
		t.Fatalf("Segment() failed: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(segs))
	}
	for _, seg := range segs {
		if _, err := os.Stat(seg.Path); err != nil {
			t.Errorf("Segment %d missing: %v", seg.Index, err)
		}
	}
}
