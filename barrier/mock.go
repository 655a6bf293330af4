package barrier

import "sync"

// MockedExtension is an in-process swap group implementation. It keeps a
// count of every driver call so callers can check the controller never
// touched the hardware more than needed.
type MockedExtension struct {
	mtx sync.Mutex

	Groups   uint32
	Barriers uint32

	QueryErr error
	JoinErr  error
	BindErr  error
	// RefuseBind makes BindSwapBarrier report failure without an error.
	RefuseBind bool

	QueryCalls int
	JoinCalls  int
	BindCalls  int
	ResetCalls int

	JoinedGroup  uint32
	BoundBarrier uint32
	frames       uint32
}

func NewMockedExtension() *MockedExtension {
	return &MockedExtension{Groups: 1, Barriers: 1}
}

func (m *MockedExtension) QueryMaxGroupsAndBarriers() (uint32, uint32, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.QueryCalls++
	if m.QueryErr != nil {
		return 0, 0, m.QueryErr
	}
	return m.Groups, m.Barriers, nil
}

func (m *MockedExtension) JoinSwapGroup(id uint32) (bool, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.JoinCalls++
	if m.JoinErr != nil {
		return false, m.JoinErr
	}
	m.JoinedGroup = id
	return true, nil
}

func (m *MockedExtension) BindSwapBarrier(group uint32, barrier uint32) (bool, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.BindCalls++
	if m.BindErr != nil {
		return false, m.BindErr
	}
	if m.RefuseBind {
		return false, nil
	}
	m.BoundBarrier = barrier
	return true, nil
}

func (m *MockedExtension) QueryFrameCount() (uint32, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.BoundBarrier != 0 {
		m.frames++
	}
	return m.frames, nil
}

func (m *MockedExtension) ResetFrameCount() (bool, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.ResetCalls++
	m.frames = 0
	return true, nil
}

func (m *MockedExtension) Calls() (join, bind int) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.JoinCalls, m.BindCalls
}
