package agent

import (
	"context"
	"iter"
	"strings"
	"time"
)

// ChunkSink receives incremental pieces of a reply message.
type ChunkSink func(chunk string) error

// Words yields text one word at a time, each followed by a single space,
// pausing delay after every word. The sequence can be ranged more than once
// and stops early when ctx is done.
func Words(ctx context.Context, text string, delay time.Duration) iter.Seq[string] {
	words := strings.Fields(text)
	return func(yield func(string) bool) {
		for _, w := range words {
			if ctx.Err() != nil {
				return
			}
			if !yield(w + " ") {
				return
			}
			if delay <= 0 {
				continue
			}
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}
