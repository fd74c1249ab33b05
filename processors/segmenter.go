package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"

	"quizHelper/core"
	"quizHelper/utils"
)

// DefaultSegmentLengthMs is the segment length used when none is configured.
const DefaultSegmentLengthMs int64 = 60_000

// transcriptionSampleRate is what speech-to-text services expect.
const transcriptionSampleRate beep.SampleRate = 16000

// Segmenter splits an audio source into ordered segments, each written to a
// temporary file. Ownership of the files passes to the caller.
type Segmenter interface {
	Segment(ctx context.Context, source string, segmentLengthMs int64) ([]core.AudioSegment, error)
}

// PlanSegments covers [0, durationMs) with ceil(durationMs/segmentLengthMs)
// contiguous spans. The last span may be shorter. Paths are left empty.
func PlanSegments(durationMs, segmentLengthMs int64) []core.AudioSegment {
	if durationMs <= 0 || segmentLengthMs <= 0 {
		return nil
	}
	n := (durationMs + segmentLengthMs - 1) / segmentLengthMs
	segments := make([]core.AudioSegment, 0, n)
	for i := int64(0); i < n; i++ {
		start := i * segmentLengthMs
		end := min(start+segmentLengthMs, durationMs)
		segments = append(segments, core.AudioSegment{Index: int(i), StartMs: start, EndMs: end})
	}
	return segments
}

func newSegmentDir(tempDir string) (string, error) {
	dir, err := os.MkdirTemp(tempDir, "segments-*")
	if err != nil {
		return "", fmt.Errorf("create segment dir: %w", err)
	}
	return dir, nil
}

// ========== Pure Go backend ==========

// BeepSegmenter decodes mp3, wav, flac and ogg/vorbis in process and writes
// each segment as 16 kHz mono WAV.
type BeepSegmenter struct {
	TempDir string
	logger  *log.Logger
}

func NewBeepSegmenter(tempDir string, logger *log.Logger) *BeepSegmenter {
	if logger == nil {
		logger = newLogger("SEGMENTER")
	}
	return &BeepSegmenter{TempDir: tempDir, logger: logger}
}

// SupportsExtension reports whether the decoder can handle files with ext.
func (s *BeepSegmenter) SupportsExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".mp3", ".wav", ".wave", ".flac", ".ogg", ".oga":
		return true
	}
	return false
}

func decodeAudio(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	switch ext := strings.ToLower(filepath.Ext(f.Name())); ext {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav", ".wave":
		return wav.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".ogg", ".oga":
		return vorbis.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", ext)
	}
}

func (s *BeepSegmenter) Segment(ctx context.Context, source string, segmentLengthMs int64) ([]core.AudioSegment, error) {
	if segmentLengthMs <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %d", segmentLengthMs)
	}
	s.logger.Printf("Loading audio file: %s", source)

	f, err := os.Open(source)
	if err != nil {
		return nil, &core.DecodeError{Path: source, Err: err}
	}
	defer f.Close()

	streamer, format, err := decodeAudio(f)
	if err != nil {
		return nil, &core.DecodeError{Path: source, Err: err}
	}
	defer streamer.Close()

	total := streamer.Len()
	durationMs := format.SampleRate.D(total).Milliseconds()
	plan := PlanSegments(durationMs, segmentLengthMs)
	if len(plan) == 0 {
		s.logger.Printf("No audio to split in %s", source)
		return nil, nil
	}

	dir, err := newSegmentDir(s.TempDir)
	if err != nil {
		return nil, err
	}

	segments := make([]core.AudioSegment, 0, len(plan))
	for _, seg := range plan {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}

		startSample := format.SampleRate.N(time.Duration(seg.StartMs) * time.Millisecond)
		endSample := format.SampleRate.N(time.Duration(seg.EndMs) * time.Millisecond)
		if seg.Index == len(plan)-1 {
			endSample = total
		}
		if err := streamer.Seek(startSample); err != nil {
			os.RemoveAll(dir)
			return nil, &core.DecodeError{Path: source, Err: fmt.Errorf("seek to segment %d: %w", seg.Index, err)}
		}

		seg.Path = filepath.Join(dir, fmt.Sprintf("segment_%04d.wav", seg.Index))
		if err := writeWAVSegment(seg.Path, beep.Take(endSample-startSample, streamer), format.SampleRate); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("write segment %d: %w", seg.Index, err)
		}
		if err := streamer.Err(); err != nil {
			os.RemoveAll(dir)
			return nil, &core.DecodeError{Path: source, Err: err}
		}
		segments = append(segments, seg)
	}

	s.logger.Printf("Split audio into %d segments (%d ms total)", len(segments), durationMs)
	return segments, nil
}

func writeWAVSegment(path string, src beep.Streamer, rate beep.SampleRate) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	if rate != transcriptionSampleRate {
		src = beep.Resample(4, rate, transcriptionSampleRate, src)
	}
	format := beep.Format{SampleRate: transcriptionSampleRate, NumChannels: 1, Precision: 2}
	return wav.Encode(out, src, format)
}

// ========== ffmpeg backend ==========

// audioFilters are ffmpeg -af presets applied while cutting segments.
var audioFilters = map[string]string{
	"speech":    "highpass=f=200,lowpass=f=3000",
	"normalize": "dynaudnorm=p=0.95:m=100:s=12:g=15",
}

// FFmpegSegmenter handles any container ffmpeg can read. Each segment is cut
// with a seek and written as 16 kHz mono MP3, optionally filtered.
type FFmpegSegmenter struct {
	TempDir string
	Filter  string
	logger  *log.Logger
}

func NewFFmpegSegmenter(tempDir string, logger *log.Logger) *FFmpegSegmenter {
	if logger == nil {
		logger = newLogger("SEGMENTER")
	}
	return &FFmpegSegmenter{TempDir: tempDir, logger: logger}
}

func msToSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}

func segmentArgs(source, out, filter string, seg core.AudioSegment) []string {
	args := []string{
		"-y",
		"-ss", msToSeconds(seg.StartMs),
		"-t", msToSeconds(seg.DurationMs()),
		"-i", source,
		"-vn", "-ac", "1", "-ar", "16000",
	}
	if af, ok := audioFilters[filter]; ok {
		args = append(args, "-af", af)
	}
	return append(args, "-f", "mp3", out)
}

func (s *FFmpegSegmenter) Segment(ctx context.Context, source string, segmentLengthMs int64) ([]core.AudioSegment, error) {
	if segmentLengthMs <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %d", segmentLengthMs)
	}
	s.logger.Printf("Probing audio file: %s", source)

	durationMs, err := utils.ProbeDurationMs(ctx, source)
	if err != nil {
		return nil, &core.DecodeError{Path: source, Err: err}
	}
	plan := PlanSegments(durationMs, segmentLengthMs)
	if len(plan) == 0 {
		s.logger.Printf("No audio to split in %s", source)
		return nil, nil
	}

	dir, err := newSegmentDir(s.TempDir)
	if err != nil {
		return nil, err
	}

	segments := make([]core.AudioSegment, 0, len(plan))
	for _, seg := range plan {
		seg.Path = filepath.Join(dir, fmt.Sprintf("segment_%04d.mp3", seg.Index))
		if err := utils.RunFFmpeg(ctx, segmentArgs(source, seg.Path, s.Filter, seg)); err != nil {
			os.RemoveAll(dir)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &core.DecodeError{Path: source, Err: fmt.Errorf("segment %d: %w", seg.Index, err)}
		}
		segments = append(segments, seg)
	}

	s.logger.Printf("Split audio into %d segments (%d ms total)", len(segments), durationMs)
	return segments, nil
}

// ========== Selection ==========

// AutoSegmenter uses the pure Go decoder when it knows the extension and
// falls back to ffmpeg otherwise.
type AutoSegmenter struct {
	beep   *BeepSegmenter
	ffmpeg *FFmpegSegmenter
}

func (a *AutoSegmenter) Segment(ctx context.Context, source string, segmentLengthMs int64) ([]core.AudioSegment, error) {
	if a.beep.SupportsExtension(filepath.Ext(source)) {
		return a.beep.Segment(ctx, source, segmentLengthMs)
	}
	return a.ffmpeg.Segment(ctx, source, segmentLengthMs)
}

// NewSegmenter returns the backend named by kind: "beep", "ffmpeg" or "auto".
// A filter preset needs ffmpeg, so "auto" always uses it when one is set.
func NewSegmenter(kind, filter, tempDir string, logger *log.Logger) (Segmenter, error) {
	if _, ok := audioFilters[filter]; filter != "" && !ok {
		return nil, fmt.Errorf("unknown audio filter %q", filter)
	}
	ffmpeg := NewFFmpegSegmenter(tempDir, logger)
	ffmpeg.Filter = filter

	switch kind {
	case "beep":
		return NewBeepSegmenter(tempDir, logger), nil
	case "ffmpeg":
		return ffmpeg, nil
	case "", "auto":
		if filter != "" {
			return ffmpeg, nil
		}
		return &AutoSegmenter{beep: NewBeepSegmenter(tempDir, logger), ffmpeg: ffmpeg}, nil
	default:
		return nil, fmt.Errorf("unknown segmenter %q", kind)
	}
}

// newLogger mirrors the bracketed component prefixes used across the service.
func newLogger(component string) *log.Logger {
	return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
}
