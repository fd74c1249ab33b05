package processors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quizHelper/config"
	"quizHelper/core"
	"quizHelper/storage"
)

// fileTranscriber returns each segment file's content, so "t<i>" comes back
// for segment i.
type fileTranscriber struct {
	fail   string
	panic  string
	block  string
	jitter bool
}

func (f *fileTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
	}
	switch text {
	case f.fail:
		return "", errors.New("service unavailable")
	case f.panic:
		panic("transcriber crashed")
	case f.block:
		<-ctx.Done()
		return "", ctx.Err()
	}
	return text, nil
}

func makeSegmentFiles(t *testing.T, n int) ([]core.AudioSegment, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "segments")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	segs := make([]core.AudioSegment, n)
	for i := range segs {
		path := filepath.Join(dir, fmt.Sprintf("segment_%04d.wav", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("t%d", i)), 0644); err != nil {
			t.Fatal(err)
		}
		segs[i] = core.AudioSegment{Index: i, StartMs: int64(i) * 1000, EndMs: int64(i+1) * 1000, Path: path}
	}
	return segs, dir
}

func assertRemoved(t *testing.T, segs []core.AudioSegment, dir string) {
	t.Helper()
	for _, s := range segs {
		if _, err := os.Stat(s.Path); !os.IsNotExist(err) {
			t.Errorf("Segment file %s still exists", s.Path)
		}
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Segment dir %s still exists", dir)
	}
}

func TestTranscribeMergesInIndexOrder(t *testing.T) {
	for run := 0; run < 5; run++ {
		segs, dir := makeSegmentFiles(t, 8)
		tc := NewTranscriptionCoordinator(&fileTranscriber{jitter: true}, 4, 0, nil)

		text, err := tc.Transcribe(context.Background(), segs)
		if err != nil {
			t.Fatalf("Transcribe() failed: %v", err)
		}
		want := "t0\nt1\nt2\nt3\nt4\nt5\nt6\nt7"
		if text != want {
			t.Fatalf("Run %d: expected %q, got %q", run, want, text)
		}
		assertRemoved(t, segs, dir)
	}
}

func TestTranscribeDropsFailedSegment(t *testing.T) {
	segs, dir := makeSegmentFiles(t, 3)
	tc := NewTranscriptionCoordinator(&fileTranscriber{fail: "t1", jitter: true}, 3, 0, nil)

	text, report, err := tc.TranscribeWithReport(context.Background(), segs)
	if err != nil {
		t.Fatalf("Segment failure must not fail the job: %v", err)
	}
	if text != "t0\nt2" {
		t.Errorf("Expected %q, got %q", "t0\nt2", text)
	}
	if len(report.FailedSegments) != 1 || report.FailedSegments[0] != 1 {
		t.Errorf("Expected failed segments [1], got %v", report.FailedSegments)
	}
	if report.Succeeded != 2 || report.Segments != 3 {
		t.Errorf("Unexpected report %+v", report)
	}
	assertRemoved(t, segs, dir)
}

func TestTranscribeRecoversFromPanic(t *testing.T) {
	segs, dir := makeSegmentFiles(t, 3)
	tc := NewTranscriptionCoordinator(&fileTranscriber{panic: "t1"}, 2, 0, nil)

	text, report, err := tc.TranscribeWithReport(context.Background(), segs)
	if err != nil {
		t.Fatalf("TranscribeWithReport() failed: %v", err)
	}
	if text != "t0\nt2" {
		t.Errorf("Expected %q, got %q", "t0\nt2", text)
	}
	if len(report.FailedSegments) != 1 {
		t.Errorf("Expected one failed segment, got %v", report.FailedSegments)
	}
	assertRemoved(t, segs, dir)
}

func TestTranscribeSegmentTimeout(t *testing.T) {
	segs, dir := makeSegmentFiles(t, 3)
	tc := NewTranscriptionCoordinator(&fileTranscriber{block: "t2"}, 3, 50*time.Millisecond, nil)

	text, err := tc.Transcribe(context.Background(), segs)
	if err != nil {
		t.Fatalf("Transcribe() failed: %v", err)
	}
	if text != "t0\nt1" {
		t.Errorf("Expected %q, got %q", "t0\nt1", text)
	}
	assertRemoved(t, segs, dir)
}

func TestTranscribeCancelled(t *testing.T) {
	segs, dir := makeSegmentFiles(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tc := NewTranscriptionCoordinator(&fileTranscriber{}, 2, 0, nil)
	text, err := tc.Transcribe(ctx, segs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if text != "" {
		t.Errorf("Expected no transcript, got %q", text)
	}
	assertRemoved(t, segs, dir)
}

func TestTranscribeNoSegments(t *testing.T) {
	tc := NewTranscriptionCoordinator(&fileTranscriber{}, 0, 0, nil)
	text, err := tc.Transcribe(context.Background(), nil)
	if err != nil || text != "" {
		t.Errorf("Expected empty transcript, got %q, %v", text, err)
	}
}

func TestMergeTranscripts(t *testing.T) {
	results := []core.TranscriptResult{
		{Index: 2, Text: "c"},
		{Index: 0, Text: "a"},
		{Index: 1, Text: ""},
		{Index: 3, Text: "d"},
	}
	if got := MergeTranscripts(results); got != "a\nc\nd" {
		t.Errorf("Expected %q, got %q", "a\nc\nd", got)
	}
	if results[0].Index != 2 {
		t.Error("MergeTranscripts must not reorder its input")
	}
}

func TestDefaultWorkers(t *testing.T) {
	if DefaultWorkers() < 1 {
		t.Errorf("DefaultWorkers() = %d", DefaultWorkers())
	}
}

func TestParseWhisperOutput(t *testing.T) {
	out := []byte(`[{"start":0,"end":2.5,"text":" Hello"},{"start":2.5,"end":4,"text":"world. "},{"start":4,"end":5,"text":"  "}]`)
	text, err := parseWhisperOutput(out)
	if err != nil {
		t.Fatalf("parseWhisperOutput() failed: %v", err)
	}
	if text != "Hello world." {
		t.Errorf("Expected %q, got %q", "Hello world.", text)
	}
	if _, err := parseWhisperOutput([]byte("Traceback")); err == nil {
		t.Error("Expected error for non-JSON output")
	}
}

func TestOpenAITranscriber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Expected multipart body: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-test" {
			t.Errorf("Expected model whisper-test, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello from segment"}`))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.APIKey = "test"
	cfg.BaseURL = server.URL + "/v1"

	path := filepath.Join(t.TempDir(), "segment_0000.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	tr, err := NewTranscriber("openai", storage.NewOpenAIClient(cfg), "whisper-test", "")
	if err != nil {
		t.Fatalf("NewTranscriber() failed: %v", err)
	}
	text, err := tr.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe() failed: %v", err)
	}
	if text != "hello from segment" {
		t.Errorf("Unexpected text %q", text)
	}

	if _, err := NewTranscriber("vosk", nil, "", ""); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
