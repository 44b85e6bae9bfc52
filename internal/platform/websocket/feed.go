package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gcasillas/clinical-imaging/internal/domain/admission"
)

// EventAdmissionsSnapshot carries the full admission list.
const EventAdmissionsSnapshot = "admissions.snapshot"

// RunAdmissionFeed broadcasts every admission list snapshot to the
// admissions topic until ctx is done.
func RunAdmissionFeed(ctx context.Context, hub *Hub, list *admission.LiveList) error {
	snapshots, err := list.Subscribe(ctx)
	if err != nil {
		return err
	}
	for recs := range snapshots {
		data, err := json.Marshal(recs)
		if err != nil {
			hub.logger.Error().Err(err).Msg("failed to marshal admission snapshot")
			continue
		}
		hub.Broadcast(Event{
			Type:      EventAdmissionsSnapshot,
			Topic:     TopicAdmissions,
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
	}
	return nil
}
