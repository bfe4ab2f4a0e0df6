package launcher

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
)

var (
	ErrNoFreePort = errors.New("no free port in range")
	ErrPortInUse  = errors.New("port already assigned to a running bot")
)

// AssignPort picks a random port in [lo, hi] not present in held. It does
// not probe the host; held is the launcher's own bookkeeping.
func AssignPort(lo, hi int, held map[int]bool, rnd *rand.Rand) (int, error) {
	if lo <= 0 || hi < lo {
		return 0, fmt.Errorf("invalid port range %d-%d", lo, hi)
	}
	span := hi - lo + 1
	start := 0
	if rnd != nil {
		start = rnd.Intn(span)
	} else {
		start = rand.Intn(span)
	}
	for i := 0; i < span; i++ {
		p := lo + (start+i)%span
		if !held[p] {
			return p, nil
		}
	}
	return 0, ErrNoFreePort
}

// Prober reports whether port is free on this host.
type Prober func(port int) bool

// ProbeTCP reports a port as free when it can be listened on.
func ProbeTCP(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// ScanFreePort returns the first port in [lo, hi] that probe reports free.
func ScanFreePort(lo, hi int, probe Prober) (int, error) {
	if probe == nil {
		probe = ProbeTCP
	}
	for p := lo; p <= hi; p++ {
		if probe(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%d-%d: %w", lo, hi, ErrNoFreePort)
}
