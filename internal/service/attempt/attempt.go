package attempt

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out process-unique attempt IDs.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(learnerId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-att-%d", learnerId, n)
}
