package barrier

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	swapGroup   uint32 = 1
	swapBarrier uint32 = 1
)

type Capability int

const (
	Unknown Capability = iota
	Unsupported
	Supported
)

func (c Capability) String() string {
	switch c {
	case Supported:
		return "supported"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

type State struct {
	Capability    Capability
	JoinedGroup   bool
	BarrierActive bool
	FrameCounter  uint32
}

// Controller owns the swap group state of the process.
type Controller struct {
	mtx    sync.Mutex
	ext    Extension
	logger *zap.Logger
	state  State
	closed bool
}

func New(logger *zap.Logger, ext Extension) *Controller {
	if ext == nil {
		ext = NoExtension()
	}
	return &Controller{
		ext:    ext,
		logger: logger.With(zap.String("component", "swap_barrier")),
	}
}

func (c *Controller) State() State {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.state
}

func (c *Controller) DetectCapability() Capability {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state.Capability != Unknown {
		return c.state.Capability
	}
	groups, barriers, err := c.ext.QueryMaxGroupsAndBarriers()
	switch {
	case err != nil:
		c.logger.Warn("failed to query swap group capability", zap.Error(err))
		c.state.Capability = Unsupported
	case groups == 0:
		c.logger.Info("swap groups are not supported by hardware")
		c.state.Capability = Unsupported
	default:
		c.logger.Info("swap groups are supported by hardware",
			zap.Uint32("max_groups", groups), zap.Uint32("max_barriers", barriers))
		c.state.Capability = Supported
	}
	return c.state.Capability
}

func (c *Controller) JoinSwapGroup() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state.Capability != Supported || c.state.JoinedGroup {
		return c.state.JoinedGroup
	}
	ok, err := c.ext.JoinSwapGroup(swapGroup)
	if err != nil {
		c.logger.Warn("failed to join swap group", zap.Uint32("swap_group", swapGroup), zap.Error(err))
		ok = false
	}
	c.state.JoinedGroup = ok
	c.logger.Info("joined swap group", zap.Uint32("swap_group", swapGroup), zap.Bool("success", ok))
	return ok
}

func (c *Controller) SetBarrier(active bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := c.setBarrier(active); err != nil {
		c.logger.Warn("failed to update swap barrier", zap.Bool("barrier_active", active), zap.Error(err))
	}
}

func (c *Controller) setBarrier(active bool) error {
	if c.state.Capability != Supported || !c.state.JoinedGroup {
		return nil
	}
	if active == c.state.BarrierActive {
		return nil
	}
	barrier := uint32(0)
	if active {
		barrier = swapBarrier
	}
	ok, err := c.ext.BindSwapBarrier(swapGroup, barrier)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("driver refused to bind swap group %d to barrier %d", swapGroup, barrier)
	}
	c.state.BarrierActive = active
	c.logger.Info("swap barrier updated", zap.Bool("barrier_active", active))
	return nil
}

func (c *Controller) ResetFrameCounter() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if !c.state.BarrierActive {
		return
	}
	ok, err := c.ext.ResetFrameCount()
	if err != nil || !ok {
		c.logger.Info("resetting frame counter failed", zap.Error(err))
		return
	}
	c.state.FrameCounter = 0
	c.logger.Info("resetting frame counter")
}

// FrameNumber returns the universal frame number reported by the hardware,
// or zero when no barrier is active. Only meant for diagnostics.
func (c *Controller) FrameNumber() uint32 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if !c.state.BarrierActive {
		return 0
	}
	count, err := c.ext.QueryFrameCount()
	if err != nil {
		c.logger.Debug("failed to query frame count", zap.Error(err))
		return c.state.FrameCounter
	}
	c.state.FrameCounter = count
	return count
}

// Close always tries to unbind the barrier and leave the swap group, whatever
// happened before. A barrier left bound can hang the next process started on
// the same GPU.
func (c *Controller) Close() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.state.Capability != Supported {
		return
	}
	var err error
	if _, unbindErr := c.ext.BindSwapBarrier(swapGroup, 0); unbindErr != nil {
		err = multierr.Append(err, errors.Wrap(unbindErr, "failed to unbind swap barrier"))
	}
	c.state.BarrierActive = false
	if _, leaveErr := c.ext.JoinSwapGroup(0); leaveErr != nil {
		err = multierr.Append(err, errors.Wrap(leaveErr, "failed to leave swap group"))
	}
	c.state.JoinedGroup = false
	if err != nil {
		c.logger.Error("swap group teardown failed", zap.Error(err))
		return
	}
	c.logger.Info("left swap group")
}
