// Package filter decides which discovery modules run and which resource
// types are forwarded.
package filter

import (
	"context"

	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/pkg/resource"
)

// Filter controls which services to scan and which resource types to emit.
type Filter struct {
	services        map[string]bool
	excludeServices map[string]bool
	excludeTypes    map[string]bool
}

// New creates a Filter. An empty services list enables every service;
// exclusions win over the allow-list.
func New(services, excludeServices, excludeTypes []string) *Filter {
	return &Filter{
		services:        set(services),
		excludeServices: set(excludeServices),
		excludeTypes:    set(excludeTypes),
	}
}

func set(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Enabled reports whether the module for service should run.
func (f *Filter) Enabled(service string) bool {
	if f == nil {
		return true
	}
	if f.excludeServices[service] {
		return false
	}
	return len(f.services) == 0 || f.services[service]
}

// ShouldEmitType returns true if resources of typ are forwarded.
func (f *Filter) ShouldEmitType(typ string) bool {
	return f == nil || !f.excludeTypes[typ]
}

// Emitter wraps next so that envelopes of excluded types are dropped with
// emitter.ErrDropped.
func (f *Filter) Emitter(next emitter.Emitter) emitter.Emitter {
	if f == nil || len(f.excludeTypes) == 0 {
		return next
	}
	return &typeFilter{filter: f, next: next}
}

type typeFilter struct {
	filter *Filter
	next   emitter.Emitter
}

func (t *typeFilter) Emit(ctx context.Context, env resource.Envelope) error {
	if env.Contents != nil && !t.filter.ShouldEmitType(env.Contents.ResourceType()) {
		return emitter.ErrDropped
	}
	return t.next.Emit(ctx, env)
}

func (t *typeFilter) Close() error {
	return t.next.Close()
}
