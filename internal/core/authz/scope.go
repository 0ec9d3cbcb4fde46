// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"sync"
)

// # Resource Scopes

// ResourceScope narrows a granted permission to specific resource instances.
// A scope answers "may this user touch THIS resource", after the PDP has
// already established the permission itself is granted.
//
// Implementations live next to the resource's owning domain and register
// themselves against the permission name at composition time.
type ResourceScope interface {

	/*
		Allows reports whether the user may act on the specific resource.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - orgID: string
		  - resourceID: string

		Returns:
		  - bool: true when the instance is in scope
		  - error: Lookup failures (the PDP fails closed on them)
	*/
	Allows(context context.Context, userID, orgID, resourceID string) (bool, error)
}

// ScopeRegistry maps permission names to their resource scopes. Permissions
// without a registered scope treat any resource_id as in scope once the
// permission is granted.
type ScopeRegistry struct {
	mu     sync.RWMutex
	scopes map[string]ResourceScope
}

// NewScopeRegistry constructs an empty registry.
func NewScopeRegistry() *ScopeRegistry {
	return &ScopeRegistry{scopes: map[string]ResourceScope{}}
}

// Register binds a scope to a permission name, replacing any previous one.
func (registry *ScopeRegistry) Register(permission string, scope ResourceScope) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.scopes[permission] = scope
}

// Lookup returns the scope for a permission, or nil when none is registered.
func (registry *ScopeRegistry) Lookup(permission string) ResourceScope {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.scopes[permission]
}
