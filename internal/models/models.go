// Package models holds the example ODE systems the CLI and tests integrate.
package models

import (
	"fmt"
	"sort"

	"github.com/san-kum/odebind"
)

// Model bundles a named ODE system with a ready-to-use session
// configuration.
type Model struct {
	Name   string
	Desc   string
	Dim    int
	Stiff  bool
	Y0     []float64
	Config odebind.Config
	// Exact when non-nil returns the analytic solution at t, used by
	// accuracy tests.
	Exact func(t float64) []float64
}

var registry = map[string]func() *Model{
	"linear3":   Linear3,
	"decay":     Decay,
	"pendulum":  Pendulum,
	"vanderpol": VanDerPol,
	"heat1d":    func() *Model { return Heat1D(40) },
}

// Lookup returns a fresh instance of the named model.
func Lookup(name string) (*Model, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("models: unknown model %q", name)
	}
	return mk(), nil
}

// Names lists the registered models in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
