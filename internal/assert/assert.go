// Package assert backs the programming-error category of the bus's error
// taxonomy: conditions that must never happen if callers honor the
// documented contracts. Recoverable conditions never go through here —
// they're returned as sentinel errors instead.
package assert

import "fmt"

// That panics with a formatted message if cond is false.
func That(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
