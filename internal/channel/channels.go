package channel

import (
	"feedflow/internal/channel/bba"
)

// Channels groups the pipeline channels plus the error channel components use
// to surface fatal conditions to the orchestrator.
type Channels struct {
	BBA    *bba.Channels
	Errors chan error
}

func NewChannels(rawBufferSize, normBufferSize, errorBufferSize int) *Channels {
	if errorBufferSize < 1 {
		errorBufferSize = 1
	}
	return &Channels{
		BBA:    bba.NewChannels(rawBufferSize, normBufferSize),
		Errors: make(chan error, errorBufferSize),
	}
}

// ReportFatal surfaces err on the error channel without blocking. A full
// buffer means the orchestrator is already tearing down and the error can be
// dropped.
func (c *Channels) ReportFatal(err error) {
	if err == nil {
		return
	}
	select {
	case c.Errors <- err:
	default:
	}
}

func (c *Channels) Close() {
	if c.BBA != nil {
		c.BBA.Close()
	}
	close(c.Errors)
}
