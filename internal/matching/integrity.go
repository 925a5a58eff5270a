package matching

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/models"
)

// ErrIntegrity marks a run whose output breaks a hard invariant. Such a
// run must never be committed.
var ErrIntegrity = errors.New("integrity violation")

// CheckIntegrity verifies that sources holds exactly one association per
// tracklet, that a target is present iff the decision is linked, that no
// target is linked twice, and that no tracklet is on two journeys.
func CheckIntegrity(sources []uuid.UUID, assocs []models.Association, journeys []models.Journey) error {
	expected := make(map[uuid.UUID]bool, len(sources))
	for _, id := range sources {
		expected[id] = true
	}

	seen := make(map[uuid.UUID]bool, len(assocs))
	linkedTo := make(map[uuid.UUID]uuid.UUID, len(assocs))
	for _, a := range assocs {
		if !expected[a.FromTrackletID] {
			return fmt.Errorf("%w: association for unknown source %s", ErrIntegrity, a.FromTrackletID)
		}
		if seen[a.FromTrackletID] {
			return fmt.Errorf("%w: source %s has more than one association", ErrIntegrity, a.FromTrackletID)
		}
		seen[a.FromTrackletID] = true

		if !a.Decision.Valid() {
			return fmt.Errorf("%w: source %s has decision %q", ErrIntegrity, a.FromTrackletID, a.Decision)
		}
		linked := a.Decision == models.DecisionLinked
		if linked != (a.ToTrackletID != nil) {
			return fmt.Errorf("%w: source %s decision %s with target presence %t", ErrIntegrity, a.FromTrackletID, a.Decision, a.ToTrackletID != nil)
		}
		if !linked {
			continue
		}
		if prev, dup := linkedTo[*a.ToTrackletID]; dup {
			return fmt.Errorf("%w: target %s linked from both %s and %s", ErrIntegrity, *a.ToTrackletID, prev, a.FromTrackletID)
		}
		linkedTo[*a.ToTrackletID] = a.FromTrackletID
	}
	if len(seen) != len(expected) {
		return fmt.Errorf("%w: %d associations for %d sources", ErrIntegrity, len(seen), len(expected))
	}

	onJourney := make(map[uuid.UUID]int, len(journeys))
	for i, j := range journeys {
		for _, id := range j.TrackletIDs() {
			if prev, dup := onJourney[id]; dup {
				return fmt.Errorf("%w: tracklet %s on journeys %d and %d", ErrIntegrity, id, prev, i)
			}
			onJourney[id] = i
		}
	}
	return nil
}
