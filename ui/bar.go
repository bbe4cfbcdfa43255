package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/franksops/gridq/engine"
)

// BarListener renders one item progress bar per record for headless runs,
// followed by a summary line when the record ends.
type BarListener struct {
	out io.Writer

	mu       sync.Mutex
	bar      *pb.ProgressBar
	recordID string
}

// NewBarListener writes bars and summaries to out.
func NewBarListener(out io.Writer) *BarListener {
	return &BarListener{out: out}
}

// OnStatus implements manager.Listener.
func (l *BarListener) OnStatus(ev engine.StatusEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Terminal() {
		l.finish()
		if ev.State == engine.EventSuccess {
			fmt.Fprintf(l.out, "%s %s %s -> %s: complete (%d items)\n",
				ev.Kind, shortID(ev.RecordID), ev.SourcePath, ev.TargetPath, ev.ItemCount)
		} else {
			fmt.Fprintf(l.out, "%s %s %s -> %s: failed: %v\n",
				ev.Kind, shortID(ev.RecordID), ev.SourcePath, ev.TargetPath, ev.Err)
		}
		return
	}

	if l.bar == nil || l.recordID != ev.RecordID {
		l.finish()
		l.recordID = ev.RecordID
		l.bar = pb.New(ev.ItemCount).
			SetWriter(l.out).
			Set("prefix", fmt.Sprintf("%s %s ", ev.Kind, shortID(ev.RecordID))).
			Start()
	}
	l.bar.SetCurrent(int64(ev.ItemIndex))
}

func (l *BarListener) finish() {
	if l.bar != nil {
		l.bar.Finish()
		l.bar = nil
	}
}
