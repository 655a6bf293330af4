package barrier

// Extension is the platform swap group capability (WGL_NV_swap_group and
// friends). Implementations talk to the driver; the controller never does.
type Extension interface {
	QueryMaxGroupsAndBarriers() (groups uint32, barriers uint32, err error)
	// JoinSwapGroup joins group id. Group 0 leaves the current group.
	JoinSwapGroup(id uint32) (bool, error)
	// BindSwapBarrier binds group to barrier. Barrier 0 unbinds it.
	BindSwapBarrier(group uint32, barrier uint32) (bool, error)
	QueryFrameCount() (uint32, error)
	ResetFrameCount() (bool, error)
}

type unsupported struct{}

func (unsupported) QueryMaxGroupsAndBarriers() (uint32, uint32, error) { return 0, 0, nil }
func (unsupported) JoinSwapGroup(uint32) (bool, error)                 { return false, nil }
func (unsupported) BindSwapBarrier(uint32, uint32) (bool, error)       { return false, nil }
func (unsupported) QueryFrameCount() (uint32, error)                   { return 0, nil }
func (unsupported) ResetFrameCount() (bool, error)                     { return false, nil }

// NoExtension returns the extension used on platforms without hardware swap
// groups. It reports zero groups, so the controller never goes further than
// capability detection.
func NoExtension() Extension {
	return unsupported{}
}
