package progress

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"chunkserve/internal/logging"
)

// Stats holds transfer statistics. The stream carries no length, so only
// the received count is known while a transfer runs.
type Stats struct {
	TransferredBytes atomic.Int64
	StartTime        time.Time
	Filename         string
}

// Reporter handles progress reporting
type Reporter struct {
	stats    *Stats
	interval time.Duration
	out      io.Writer
	done     chan struct{}
	stopped  chan struct{}
}

// NewReporter creates a new progress reporter. A nil out disables the
// console line; periodic log records are always emitted.
func NewReporter(stats *Stats, out io.Writer) *Reporter {
	return &Reporter{
		stats:    stats,
		interval: time.Second,
		out:      out,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins progress reporting
func (r *Reporter) Start() {
	go r.reportLoop()
}

// Stop stops progress reporting and waits for the loop to exit
func (r *Reporter) Stop() {
	close(r.done)
	<-r.stopped
	if r.out != nil {
		fmt.Fprintln(r.out) // Print newline after progress line
	}
}

// reportLoop runs the progress reporting loop
func (r *Reporter) reportLoop() {
	defer close(r.stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var lastTransferred int64
	lastUpdateTime := time.Now()
	ticks := 0

	for {
		select {
		case now := <-ticker.C:
			transferred := r.stats.TransferredBytes.Load()
			rate := Rate(transferred-lastTransferred, now.Sub(lastUpdateTime))

			// Log progress every 10 ticks
			ticks++
			if ticks%10 == 0 {
				logging.LogTransferProgress(r.stats.Filename, transferred, rate)
			}

			if r.out != nil {
				fmt.Fprintf(r.out, "\r%s: %.2f MB received at %.2f MB/s",
					r.stats.Filename, float64(transferred)/1024/1024, rate)
			}

			lastTransferred = transferred
			lastUpdateTime = now
		case <-r.done:
			return
		}
	}
}

// Rate converts a byte count over a duration into MB/s
func Rate(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / 1024 / 1024 / elapsed.Seconds()
}

// UpdateTransferred atomically updates the transferred bytes count
func (s *Stats) UpdateTransferred(bytes int64) {
	s.TransferredBytes.Add(bytes)
}

// GetTransferred atomically gets the current transferred bytes count
func (s *Stats) GetTransferred() int64 {
	return s.TransferredBytes.Load()
}
