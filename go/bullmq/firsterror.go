package bullmq

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// firstError latches the earliest failure of a group of concurrent
// probes. The zero value is ready to use.
type firstError struct {
	first error
	mu    sync.Mutex
}

// SetIfNil latches |e| as the group's failure unless one is already held
// or |e| is nil. Failures arriving after the latch are logged at debug
// and discarded.
func (c *firstError) SetIfNil(e error) {
	if e == nil {
		return
	}
	c.mu.Lock()
	if c.first == nil {
		c.first = e
	} else {
		log.WithField("error", e).Debug("ignoring subsequent error")
	}
	c.mu.Unlock()
}

// First returns the latched failure, or nil when every probe succeeded.
func (c *firstError) First() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.first
}
