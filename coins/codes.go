package coins

import (
	"fmt"
	"sync"
	"time"
)

// codeStampLayout is MMDDHHmmss.
const codeStampLayout = "0102150405"

// CodeGenerator derives human-readable coupon codes from the coupon
// identifier and the redemption time. A second redemption of the same
// coupon within one second gets a "-2", "-3", ... suffix.
type CodeGenerator struct {
	mu   sync.Mutex
	last map[string]codeStamp
}

type codeStamp struct {
	stamp string
	n     int
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{last: make(map[string]codeStamp)}
}

// Next returns the code for couponID redeemed at at.
func (g *CodeGenerator) Next(couponID string, at time.Time) string {
	stamp := at.Format(codeStampLayout)

	g.mu.Lock()
	prev := g.last[couponID]
	if prev.stamp == stamp {
		prev.n++
	} else {
		prev = codeStamp{stamp: stamp, n: 1}
	}
	g.last[couponID] = prev
	g.mu.Unlock()

	if prev.n == 1 {
		return couponID + stamp
	}
	return fmt.Sprintf("%s%s-%d", couponID, stamp, prev.n)
}
