package renderer

import "sync/atomic"

// SwapChain is an offscreen presentation target. It accepts at most
// maxFramesInFlight frames that the driver has not finished yet.
type SwapChain struct {
	width, height int
	inFlight      atomic.Int32
}

// Size returns the swap chain dimensions in pixels
func (sc *SwapChain) Size() (int, int) { return sc.width, sc.height }

// FramesInFlight returns the number of submitted frames not yet processed
func (sc *SwapChain) FramesInFlight() int { return int(sc.inFlight.Load()) }

// acquire reserves a frame slot, reporting false when all slots are taken
func (sc *SwapChain) acquire() bool {
	for {
		n := sc.inFlight.Load()
		if n >= maxFramesInFlight {
			return false
		}
		if sc.inFlight.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (sc *SwapChain) release() {
	sc.inFlight.Add(-1)
}
