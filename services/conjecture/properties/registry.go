// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package properties holds named test functions the conjecture command
// can search.
//
// A Property pairs a test function with a description and says whether a
// correct engine is expected to falsify it. The built-in set demonstrates
// each piece of the engine: integer and collection shrinking, panic
// bucketing, float and codec round trips, and filtering.
package properties

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/conjecture/services/conjecture/data"
)

// Property is one searchable test.
type Property struct {
	// Name is the registry key and the database key prefix.
	Name string

	Description string

	// ExpectFailure marks properties that are false by construction.
	ExpectFailure bool

	// Test reads choices from d and returns an error (or panics) when
	// the property does not hold.
	Test func(d *data.Data) error
}

// Registry maps names to properties.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	props map[string]Property
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{props: make(map[string]Property)}
}

// Register adds p.
//
// Outputs:
//   - error: ErrEmptyName, ErrNilTest, or a wrapped ErrAlreadyRegistered.
func (r *Registry) Register(p Property) error {
	if p.Name == "" {
		return ErrEmptyName
	}
	if p.Test == nil {
		return ErrNilTest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.props[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, p.Name)
	}
	r.props[p.Name] = p
	return nil
}

// MustRegister is Register for package initialization. It panics on
// error.
func (r *Registry) MustRegister(p Property) {
	if err := r.Register(p); err != nil {
		panic(fmt.Sprintf("properties: register %q: %v", p.Name, err))
	}
}

// Lookup returns the property called name.
func (r *Registry) Lookup(name string) (Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.props[name]
	if !ok {
		return Property{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// Names lists every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.props))
	for name := range r.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves names in order. No names selects everything.
func (r *Registry) Select(names ...string) ([]Property, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]Property, 0, len(names))
	for _, name := range names {
		p, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Builtin returns a fresh registry holding the built-in properties.
func Builtin() *Registry {
	r := NewRegistry()
	for _, p := range builtins() {
		r.MustRegister(p)
	}
	return r
}
