// uartx/claim.go

package uartx

import "sync"

// claims records which hardware instances have a live handle. Drivers bound
// to the same instance share the entry, so at most one of them holds a live
// handle at a time.
var claims struct {
	mu   sync.Mutex
	busy map[Hardware]bool
}

// claim marks hw as owned. It reports false if hw is already owned.
func claim(hw Hardware) bool {
	claims.mu.Lock()
	defer claims.mu.Unlock()
	if claims.busy[hw] {
		return false
	}
	if claims.busy == nil {
		claims.busy = make(map[Hardware]bool)
	}
	claims.busy[hw] = true
	return true
}

func unclaim(hw Hardware) {
	claims.mu.Lock()
	delete(claims.busy, hw)
	claims.mu.Unlock()
}
