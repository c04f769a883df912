package transfer

import (
	"context"
	"sync/atomic"
)

// StaticController is an InstanceController stub for tests and for
// running the receptionist in front of an already-running backend
// without wiring a real cloud integration: it reports a fixed public
// IP, and it is running either from construction (alreadyRunning) or
// from the first Start call onwards.
type StaticController struct {
	PublicIP string

	running atomic.Bool
}

// NewStaticController returns a StaticController that reports
// publicIP as reachable once Start has been called at least once, or
// immediately if alreadyRunning is true.
func NewStaticController(publicIP string, alreadyRunning bool) *StaticController {
	c := &StaticController{PublicIP: publicIP}
	if alreadyRunning {
		c.running.Store(true)
	}
	return c
}

func (c *StaticController) Describe(ctx context.Context, instanceName string) (InstanceStatus, error) {
	return InstanceStatus{
		Running:  c.running.Load(),
		PublicIP: c.PublicIP,
	}, nil
}

func (c *StaticController) Start(ctx context.Context, instanceName string) error {
	c.running.Store(true)
	return nil
}
