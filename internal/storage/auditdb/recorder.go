// internal/storage/auditdb/recorder.go
package auditdb

import (
	"context"
	"sync"
	"time"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// Recorder adapts the archive to the dice audit sink. The owning service
// keeps the session and date current; archive failures are logged and
// swallowed so a broken archive never blocks play.
type Recorder struct {
	store *Store

	mu       sync.Mutex
	session  string
	gameDate string
}

// NewRecorder creates a recorder over the store. A nil store yields a
// recorder that drops everything.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// SetContext updates the session and in-game date stamped on records.
func (r *Recorder) SetContext(session, gameDate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = session
	r.gameDate = gameDate
}

// RecordRoll implements dice.Sink.
func (r *Recorder) RecordRoll(roll dice.Roll) {
	if r.store == nil {
		return
	}

	r.mu.Lock()
	session, gameDate := r.session, r.gameDate
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.store.RecordRoll(ctx, session, gameDate, roll); err != nil {
		utils.GetLogger().Warnf("audit archive: record roll: %v", err)
	}
}

// RecordAdjudication archives an adjudication entry under the current
// context.
func (r *Recorder) RecordAdjudication(kind, entry string) {
	if r.store == nil {
		return
	}

	r.mu.Lock()
	session, gameDate := r.session, r.gameDate
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.store.RecordAdjudication(ctx, session, gameDate, kind, entry); err != nil {
		utils.GetLogger().Warnf("audit archive: record adjudication: %v", err)
	}
}
