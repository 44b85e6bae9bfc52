// Package workqueue sequences annotate -> map -> render for the item a viewer
// selects, and owns the overlay toggle for that item.
package workqueue

import (
	"github.com/gcasillas/clinical-imaging/internal/domain/annotation"
	"github.com/gcasillas/clinical-imaging/internal/domain/imaging"
	"github.com/gcasillas/clinical-imaging/internal/domain/source"
)

// StudyMapper maps a source record to an ImagingStudy. *imaging.Mapper
// satisfies it.
type StudyMapper interface {
	Map(src source.Record) imaging.ImagingStudy
}

// Selection is the derived data for the selected item.
type Selection struct {
	Source         source.Record
	Study          imaging.ImagingStudy
	Finding        annotation.Finding
	OverlayVisible bool
}

// State is the selection state of one viewer. The zero value is Idle. States
// are values: transitions return a new State and leave the receiver as is.
type State struct {
	selection *Selection
}

// Idle reports whether nothing is selected.
func (s State) Idle() bool { return s.selection == nil }

// Selected returns a copy of the current selection.
func (s State) Selected() (Selection, bool) {
	if s.selection == nil {
		return Selection{}, false
	}
	return *s.selection, true
}

// OverlayVisible reports whether the overlay is shown.
func (s State) OverlayVisible() bool {
	return s.selection != nil && s.selection.OverlayVisible
}

// Select annotates src, then maps it, and returns a state selecting it with
// the overlay hidden. It is valid from any state.
func (s State) Select(src source.Record, annotator annotation.Annotator, mapper StudyMapper) State {
	finding := annotator.Annotate(src)
	study := mapper.Map(src)
	return State{selection: &Selection{
		Source:  src,
		Study:   study,
		Finding: finding,
	}}
}

// ToggleOverlay flips the overlay when the selected finding is an anomaly.
// Otherwise it returns s unchanged and false.
func (s State) ToggleOverlay() (State, bool) {
	if s.selection == nil || !s.selection.Finding.Anomalous() {
		return s, false
	}
	next := *s.selection
	next.OverlayVisible = !next.OverlayVisible
	return State{selection: &next}, true
}
