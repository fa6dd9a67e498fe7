// Package core provides the building blocks of the smartrecord engine.
// This file defines lifecycle hooks that allow custom logic to be
// executed before or after persistence operations.
package core

// PreHook represents a lifecycle hook that runs before a persistence
// operation.
//
// Hooks are identified by string tokens (e.g., "pre:insert") and are
// registered per schema. They allow validation, transformation, or side
// effects to be applied before the operation is executed; returning an
// error aborts the call.
type PreHook string

// PostHook represents a lifecycle hook that runs after a persistence
// operation, on the instance the operation produced or affected.
type PostHook string

const (
	// PreInsert is executed before an instance is inserted.
	PreInsert PreHook = "pre:insert"
	// PreUpdate is executed before an instance is updated.
	PreUpdate PreHook = "pre:update"
	// PreDelete is executed before an instance is deleted.
	PreDelete PreHook = "pre:delete"

	// PostInsert is executed after an instance is inserted.
	PostInsert PostHook = "post:insert"
	// PostUpdate is executed after an instance is updated.
	PostUpdate PostHook = "post:update"
	// PostDelete is executed after an instance is deleted.
	PostDelete PostHook = "post:delete"
	// PostFind is executed on each instance materialized by a fetch,
	// including instances loaded through relations.
	PostFind PostHook = "post:find"
)

// runPreHooks runs the registered hooks for a phase against one
// instance. Hooks are stored type-erased on the ModelMeta so the
// coordinator can run them for related models too.
func (m *ModelMeta) runPreHooks(hook PreHook, doc any) error {
	for _, fn := range m.preHookList[hook] {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// runPostHooks runs the registered post hooks for a phase.
func (m *ModelMeta) runPostHooks(hook PostHook, doc any) error {
	for _, fn := range m.postHookList[hook] {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}
