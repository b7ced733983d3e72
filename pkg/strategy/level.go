package strategy

import "fmt"

// Level selects how strategy state is keyed.
type Level string

const (
	// LevelGlobal shares one timing state across all slots (key 0).
	LevelGlobal Level = "global"
	// LevelThread keeps an independent timing state per slot index.
	LevelThread Level = "thread"
)

// ParseLevel converts a configuration value into a Level.
// "per-thread" is accepted as an alias of "thread".
func ParseLevel(s string) (Level, error) {
	switch s {
	case "", string(LevelGlobal):
		return LevelGlobal, nil
	case string(LevelThread), "per-thread":
		return LevelThread, nil
	default:
		return "", fmt.Errorf("unsupported limiter level: %s", s)
	}
}

// Key returns the strategy key of slot under level l.
func (l Level) Key(slot int) int {
	if l == LevelThread {
		return slot
	}
	return 0
}
