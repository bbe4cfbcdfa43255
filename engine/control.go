package engine

import (
	"sync"
)

// ControlBlock steers one execution of a record: where to restart, when to
// give up, and whether to stop between items.
type ControlBlock struct {
	restartPath string
	maxErrors   int

	mu               sync.Mutex
	errorCount       int
	cancelled        bool
	checkpointMissed bool
	itemCount        int
}

// NewControlBlock creates a block resuming after restartPath (empty to start
// from the first item). maxErrors <= 0 tolerates any number of item errors.
func NewControlBlock(restartPath string, maxErrors int) *ControlBlock {
	return &ControlBlock{restartPath: restartPath, maxErrors: maxErrors}
}

// RestartPath is the skip threshold: the last item known to be transferred.
func (c *ControlBlock) RestartPath() string {
	return c.restartPath
}

// Cancel asks the running operation to stop before its next item.
func (c *ControlBlock) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

// Cancelled reports whether Cancel was called or the error budget ran out.
func (c *ControlBlock) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// ReportError counts an item failure and reports whether the operation must
// stop because the error budget is spent.
func (c *ControlBlock) ReportError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
	if c.maxErrors > 0 && c.errorCount >= c.maxErrors {
		c.cancelled = true
	}
	return c.cancelled
}

// ErrorCount is the number of item failures reported so far.
func (c *ControlBlock) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorCount
}

// MarkCheckpointMissed records that RestartPath did not appear in the enumeration.
func (c *ControlBlock) MarkCheckpointMissed() {
	c.mu.Lock()
	c.checkpointMissed = true
	c.mu.Unlock()
}

// CheckpointMissed reports whether the restart path was not found.
func (c *ControlBlock) CheckpointMissed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkpointMissed
}

// SetItemCount records how many items the source enumerated, skipped ones included.
func (c *ControlBlock) SetItemCount(n int) {
	c.mu.Lock()
	c.itemCount = n
	c.mu.Unlock()
}

// ItemCount is the size of the enumeration, 0 until the source was listed.
func (c *ControlBlock) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemCount
}
