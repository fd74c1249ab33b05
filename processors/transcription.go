package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"quizHelper/core"
)

// DefaultWorkers leaves one core for the caller.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// WorkerPoolMetrics counts what the pool did during one run.
type WorkerPoolMetrics struct {
	TasksProcessed int64
	FailedTasks    int64
	TotalDuration  time.Duration
	mu             sync.Mutex
}

func (m *WorkerPoolMetrics) record(d time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TasksProcessed++
	m.TotalDuration += d
	if failed {
		m.FailedTasks++
	}
}

// AverageLatency is the mean per-segment call time.
func (m *WorkerPoolMetrics) AverageLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TasksProcessed == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.TasksProcessed)
}

// TranscriptionReport describes a finished run. Failed segments contribute no
// text to the transcript but are listed here.
type TranscriptionReport struct {
	Segments       int           `json:"segments"`
	Succeeded      int           `json:"succeeded"`
	FailedSegments []int         `json:"failed_segments"`
	Workers        int           `json:"workers"`
	Elapsed        time.Duration `json:"elapsed"`
	AverageLatency time.Duration `json:"average_latency"`
}

// TranscriptionCoordinator fans segments out to a bounded pool of workers and
// merges the results back in segment order.
type TranscriptionCoordinator struct {
	transcriber Transcriber
	workers     int
	timeout     time.Duration
	logger      *log.Logger
}

// NewTranscriptionCoordinator builds a coordinator. workers <= 0 selects
// DefaultWorkers; timeout <= 0 disables the per-segment deadline.
func NewTranscriptionCoordinator(transcriber Transcriber, workers int, timeout time.Duration, logger *log.Logger) *TranscriptionCoordinator {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if logger == nil {
		logger = newLogger("ASR")
	}
	return &TranscriptionCoordinator{
		transcriber: transcriber,
		workers:     workers,
		timeout:     timeout,
		logger:      logger,
	}
}

// Transcribe returns the merged transcript of segments.
func (tc *TranscriptionCoordinator) Transcribe(ctx context.Context, segments []core.AudioSegment) (string, error) {
	text, _, err := tc.TranscribeWithReport(ctx, segments)
	return text, err
}

// TranscribeWithReport transcribes every segment concurrently. A failing
// segment is logged and left out of the transcript. Every segment file is
// removed before this returns, whatever the outcome. Cancelling ctx aborts
// the whole run.
func (tc *TranscriptionCoordinator) TranscribeWithReport(ctx context.Context, segments []core.AudioSegment) (string, TranscriptionReport, error) {
	start := time.Now()
	workers := min(tc.workers, max(1, len(segments)))
	report := TranscriptionReport{Segments: len(segments), Workers: workers}
	defer removeSegmentDirs(segments, tc.logger)

	tc.logger.Printf("Transcribing %d segments with %d workers", len(segments), workers)

	workQueue := make(chan core.AudioSegment, len(segments))
	resultChan := make(chan core.TranscriptResult, len(segments))
	for _, seg := range segments {
		workQueue <- seg
	}
	close(workQueue)

	metrics := &WorkerPoolMetrics{}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for seg := range workQueue {
				resultChan <- tc.processSegment(ctx, workerID, seg, metrics)
			}
		}(i + 1)
	}
	wg.Wait()
	close(resultChan)

	results := make([]core.TranscriptResult, 0, len(segments))
	for res := range resultChan {
		if res.Err != nil {
			report.FailedSegments = append(report.FailedSegments, res.Index)
		}
		results = append(results, res)
	}
	sort.Ints(report.FailedSegments)
	report.Succeeded = len(results) - len(report.FailedSegments)
	report.Elapsed = time.Since(start)
	report.AverageLatency = metrics.AverageLatency()

	if err := ctx.Err(); err != nil {
		return "", report, err
	}

	if len(report.FailedSegments) > 0 {
		tc.logger.Printf("Warning: %d of %d segments failed: %v", len(report.FailedSegments), len(segments), report.FailedSegments)
	}
	tc.logger.Printf("Transcription finished in %.2fs (avg %v per segment)", report.Elapsed.Seconds(), report.AverageLatency)
	return MergeTranscripts(results), report, nil
}

func (tc *TranscriptionCoordinator) processSegment(ctx context.Context, workerID int, seg core.AudioSegment, metrics *WorkerPoolMetrics) (result core.TranscriptResult) {
	start := time.Now()
	result.Index = seg.Index

	defer func() {
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			tc.logger.Printf("Warning: failed to remove segment file %s: %v", seg.Path, err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			result.Text = ""
			result.Err = &core.SegmentTranscriptionError{Index: seg.Index, Err: fmt.Errorf("panic: %v", r)}
		}
		metrics.record(time.Since(start), result.Err != nil)
	}()

	if err := ctx.Err(); err != nil {
		result.Err = &core.SegmentTranscriptionError{Index: seg.Index, Err: err}
		return result
	}

	callCtx := ctx
	if tc.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, tc.timeout)
		defer cancel()
	}

	text, err := tc.transcriber.Transcribe(callCtx, seg.Path)
	if err != nil {
		result.Err = &core.SegmentTranscriptionError{Index: seg.Index, Err: err}
		tc.logger.Printf("Worker %d: %v", workerID, result.Err)
		return result
	}
	result.Text = text
	return result
}

// MergeTranscripts orders results by segment index and joins the non-empty
// texts with newlines.
func MergeTranscripts(results []core.TranscriptResult) string {
	sorted := make([]core.TranscriptResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	texts := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// removeSegmentDirs drops the now empty directories the segmenter created.
func removeSegmentDirs(segments []core.AudioSegment, logger *log.Logger) {
	seen := make(map[string]bool)
	for _, seg := range segments {
		if seg.Path == "" {
			continue
		}
		dir := filepath.Dir(seg.Path)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		// Remove only succeeds on empty directories, so caller-provided dirs
		// holding other files are left alone.
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			logger.Printf("Segment dir %s not removed: %v", dir, err)
		}
	}
}
