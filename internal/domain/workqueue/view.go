package workqueue

import (
	"github.com/gcasillas/clinical-imaging/internal/domain/annotation"
	"github.com/gcasillas/clinical-imaging/internal/domain/imaging"
)

// mrnLength is how much of the resource id the viewer shows as the MRN.
const mrnLength = 15

// View is what a viewer renders for a session.
type View struct {
	SessionID        string                `json:"sessionId"`
	ItemKey          string                `json:"itemKey,omitempty"`
	Selected         bool                  `json:"selected"`
	Study            *imaging.ImagingStudy `json:"study,omitempty"`
	Finding          *annotation.Finding   `json:"finding,omitempty"`
	MRN              string                `json:"mrn,omitempty"`
	OverlayAvailable bool                  `json:"overlayAvailable"`
	OverlayVisible   bool                  `json:"overlayVisible"`
}

// Project renders a snapshot. The overlay control is offered only for
// anomalous findings.
func Project(snap Snapshot) View {
	v := View{SessionID: snap.Session.String(), ItemKey: snap.ItemKey}
	sel, ok := snap.State.Selected()
	if !ok {
		return v
	}
	study := sel.Study
	finding := sel.Finding
	v.Selected = true
	v.Study = &study
	v.Finding = &finding
	v.MRN = truncate(study.ID, mrnLength)
	v.OverlayAvailable = finding.Anomalous()
	v.OverlayVisible = sel.OverlayVisible
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
