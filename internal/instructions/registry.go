package instructions

import (
	"fmt"
	"sort"
	"sync"
)

var registry = struct {
	mu sync.RWMutex
	m  map[string]Instruction
}{
	m: make(map[string]Instruction),
}

func init() {
	for _, item := range builtins() {
		MustRegister(item)
	}
}

func Register(item Instruction) error {
	if item == nil || item.Name() == "" {
		return fmt.Errorf("instruction name is required")
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.m[item.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrInstructionExists, item.Name())
	}
	registry.m[item.Name()] = item
	return nil
}

func MustRegister(item Instruction) {
	if err := Register(item); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Instruction, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	item, ok := registry.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstructionNotFound, name)
	}
	return item, nil
}

func Registered() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSetFromNames resolves names through the registry, preserving order.
func NewSetFromNames(names []string) (*Set, error) {
	if len(names) == 0 {
		names = DefaultNames()
	}
	items := make([]Instruction, 0, len(names))
	for _, name := range names {
		item, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return NewSet(items...)
}
