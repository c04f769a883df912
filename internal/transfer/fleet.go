package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coregx/receptionist/internal/protocol"
)

// InstanceStatus is a point-in-time snapshot of a backend instance's
// reachability, as reported by an InstanceController.
type InstanceStatus struct {
	Running  bool
	PublicIP string
}

// InstanceController is the cloud control-plane adapter contract
// (spec.md §1's "out of scope" collaborator): instance describe and
// start, with public-IP lookup folded into Describe's result. A
// concrete implementation talks to whatever fleet-management API the
// deployment uses; this package only depends on the interface.
type InstanceController interface {
	Describe(ctx context.Context, instanceName string) (InstanceStatus, error)
	Start(ctx context.Context, instanceName string) error
}

// FleetHandler implements Handler against a single named backend
// instance, provisioned on demand through an InstanceController. It is
// grounded on the provisioning-oriented managers in
// gosuda-portal/cmd/relay-server/manager, generalized from "approve a
// tunnel lease" to "ensure a backend instance exists and is reachable".
type FleetHandler struct {
	controller   InstanceController
	instanceName string
	targetPort   int
	log          zerolog.Logger

	// starting caches one *sync.Once per instance name so overlapping
	// connections never race each other into starting the same instance
	// twice; this is the concrete de-duplication spec.md §5 requires of
	// onJoin/onTransferReady.
	starting sync.Map
}

// NewFleetHandler builds a FleetHandler that provisions instanceName
// through controller and directs transferred clients to targetPort.
func NewFleetHandler(controller InstanceController, instanceName string, targetPort int, log zerolog.Logger) *FleetHandler {
	return &FleetHandler{
		controller:   controller,
		instanceName: instanceName,
		targetPort:   targetPort,
		log:          log,
	}
}

// OnJoin describes the target instance; if it is already reachable it
// returns a Transfer immediately, otherwise it kicks off (at most once)
// background provisioning and returns nil so the caller stashes "not
// ready yet".
func (f *FleetHandler) OnJoin(ctx context.Context, login Login) (*protocol.Transfer, error) {
	status, err := f.controller.Describe(ctx, f.instanceName)
	if err != nil {
		return nil, fmt.Errorf("describe instance %s: %w", f.instanceName, err)
	}

	if status.Running && status.PublicIP != "" {
		return f.transferTo(status), nil
	}

	f.ensureStarted()
	f.log.Info().
		Str("username", login.Username).
		Str("instance", f.instanceName).
		Msg("instance not ready, deferring transfer")
	return nil, nil
}

// OnTransferReady re-describes the target instance for a client that
// already waited through OnJoin returning nil.
func (f *FleetHandler) OnTransferReady(ctx context.Context) (*protocol.Transfer, error) {
	status, err := f.controller.Describe(ctx, f.instanceName)
	if err != nil {
		return nil, fmt.Errorf("describe instance %s: %w", f.instanceName, err)
	}
	if status.Running && status.PublicIP != "" {
		return f.transferTo(status), nil
	}
	return nil, nil
}

func (f *FleetHandler) transferTo(status InstanceStatus) *protocol.Transfer {
	return &protocol.Transfer{
		Hostname: status.PublicIP,
		Port:     uint16(f.targetPort),
	}
}

// ensureStarted launches controller.Start for f.instanceName in a
// background goroutine, at most once per instance name: fire-and-forget,
// since OnJoin's caller must not suspend waiting for provisioning to
// finish. Provisioning runs detached from any one connection's
// lifetime, so it uses context.Background() rather than the ctx OnJoin
// received.
func (f *FleetHandler) ensureStarted() {
	once, _ := f.starting.LoadOrStore(f.instanceName, &sync.Once{})

	once.(*sync.Once).Do(func() {
		go func() {
			if err := f.controller.Start(context.Background(), f.instanceName); err != nil {
				f.log.Warn().Err(err).Str("instance", f.instanceName).Msg("failed to start instance")
				// Allow a later connection to retry rather than wedge this
				// instance name behind a permanently-failed Once.
				f.starting.Delete(f.instanceName)
			}
		}()
	})
}
