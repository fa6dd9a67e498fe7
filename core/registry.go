// Package core provides the building blocks of the smartrecord engine.
// This file defines the process-wide schema registry: an arena of model
// descriptors indexed by name, through which relation edges are resolved.
package core

import (
	"fmt"
	"sync"
)

// Registry holds every registered model for the process lifetime.
//
// Models are registered once during startup and the registry is then
// frozen; after Freeze the graph is read-only and concurrent reads are
// safe without locking. Relation edges name their target model, and the
// registry resolves those names, so the schema graph may contain cycles
// (self-referential or mutually referential models) without ownership
// cycles between descriptors.
type Registry struct {
	mutex  sync.RWMutex
	frozen bool
	models map[string]*ModelMeta

	resolveCache sync.Map // "<model>\x1f<path>" -> *ResolvedPath
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*ModelMeta)}
}

// Register adds a schema to the registry under its struct type name.
//
// Registering after Freeze, or registering the same name twice, is an
// error: the schema graph is static once initialization completes.
func Register[T any](registry *Registry, schema *SchemaMeta[T]) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.frozen {
		return fmt.Errorf("core: registry is frozen, cannot register %s", schema.Name)
	}
	if _, ok := registry.models[schema.Name]; ok {
		return fmt.Errorf("core: model %s already registered", schema.Name)
	}
	registry.models[schema.Name] = &schema.ModelMeta
	return nil
}

// Freeze validates every relation edge of the graph and makes the
// registry read-only. Each edge's target must be registered, its keys
// must be declared columns on both sides, and many-to-many edges must
// name their join table and both join columns.
func (r *Registry) Freeze() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, meta := range r.models {
		for _, relation := range meta.Relations {
			target, ok := r.models[relation.Target]
			if !ok {
				return fmt.Errorf("core: model %s relation %s targets unregistered model %s",
					meta.Name, relation.FieldName, relation.Target)
			}
			if meta.Column(relation.LocalKey) == nil {
				return fmt.Errorf("core: model %s relation %s: local key %s is not a column",
					meta.Name, relation.FieldName, relation.LocalKey)
			}
			if target.Column(relation.ForeignKey) == nil {
				return fmt.Errorf("core: model %s relation %s: foreign key %s is not a column on %s",
					meta.Name, relation.FieldName, relation.ForeignKey, relation.Target)
			}
			if relation.Kind == ManyToMany &&
				(relation.JoinTable == "" || relation.JoinLocalKey == "" || relation.JoinForeignKey == "") {
				return fmt.Errorf("core: model %s relation %s: many-to-many requires join table and join keys",
					meta.Name, relation.FieldName)
			}
		}
	}
	r.frozen = true
	return nil
}

// Model returns the registered descriptor for a model name, or nil.
func (r *Registry) Model(name string) *ModelMeta {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.models[name]
}

// Models returns every registered descriptor. The result is a copy of
// the arena index; descriptors themselves must be treated as read-only.
// Schema introspection tooling consumes the graph through this method.
func (r *Registry) Models() []*ModelMeta {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]*ModelMeta, 0, len(r.models))
	for _, meta := range r.models {
		out = append(out, meta)
	}
	return out
}
