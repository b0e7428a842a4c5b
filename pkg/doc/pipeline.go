package doc

import "github.com/meridiandb/meridian/pkg/value"

// Run drives this Document through its full lifecycle pipeline and
// returns the pluck()ed projection. Which path runs depends on Action
// and whether Before is already populated — grounded step-for-step on
// the reference implementation's Document::relate, which branches the
// same way on self.current.doc.is_some().
func (d *Document) Run() (value.Value, error) {
	if d.Action == ActionDelete {
		return d.runDelete()
	}
	if d.Before.IsNone() {
		return d.runCreate()
	}
	return d.runUpdate()
}

// runCreate is the create/relate-with-no-prior-record path, omitting
// the update path's extra pre-image allow().
func (d *Document) runCreate() (value.Value, error) {
	for _, step := range []func() error{
		d.relation,
		d.edges,
		d.alter,
		d.field,
		d.reset,
		d.clean,
		d.allow,
		d.store,
		d.index,
		d.table,
		d.lives,
		d.changefeeds,
		d.event,
	} {
		if err := step(); err != nil {
			return value.None, err
		}
	}
	return d.pluck()
}

// runUpdate is the update/relate-over-existing-edge path: allow() runs
// twice, once against Before (the pre-image) and once against the
// freshly computed After (the post-image).
func (d *Document) runUpdate() (value.Value, error) {
	for _, step := range []func() error{
		d.relation,
		d.allow,
		d.edges,
		d.alter,
		d.field,
		d.reset,
		d.clean,
		d.allow,
		d.store,
		d.index,
		d.table,
		d.lives,
		d.changefeeds,
		d.event,
	} {
		if err := step(); err != nil {
			return value.None, err
		}
	}
	return d.pluck()
}

// runDelete removes the record and cascades the side effects a removal
// still owes: edge cleanup, index retraction, view/live/change-feed/
// event notification, returning the removed record's projection.
func (d *Document) runDelete() (value.Value, error) {
	d.After = value.None
	for _, step := range []func() error{
		d.allow,
		d.edges,
		d.store,
		d.index,
		d.table,
		d.lives,
		d.changefeeds,
		d.event,
	} {
		if err := step(); err != nil {
			return value.None, err
		}
	}
	return d.pluck()
}
