// Package update owns the dataset update machinery: a single live job
// cycling through the kanji, names, and words series, retry and error
// bookkeeping, and the aggregate snapshots pushed to observers.
//
// Everything runs on one goroutine. External requests and the store's
// callbacks alike arrive as messages on one channel, so job mutation
// and snapshot publication are serialized by construction.
package update

import (
	"context"
	"fmt"
	"time"

	"github.com/seiken-dev/jiten/internal/events"
	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/store"
)

// retryWarningThreshold is the retry count at which a persistently
// failing step escalates from breadcrumb to a warning notification.
// Isolated transient failures are expected on flaky connections; a
// resource failing this many times in a row is worth surfacing.
const retryWarningThreshold = 5

// Job is the single live update cycle.
type Job struct {
	Lang    string
	Current models.Series
	Forced  bool
}

// StoreOpener produces a ready store, typically OpenWithRetry wrapping
// a backend constructor.
type StoreOpener func(ctx context.Context) (store.Store, error)

// Manager is the update orchestrator. Construct with NewManager, start
// with Run, then talk to it through Query/Update/Cancel/Delete and the
// Notifications channel.
type Manager struct {
	opener StoreOpener
	logger *events.Logger

	// Owned by the run loop; never touched from outside it.
	store     store.Store
	job       *Job
	gen       uint64
	lastError *models.UpdateFailure

	msgs    chan message
	notifs  chan Notification
	stopped chan struct{}
}

// Inbound messages. Store callbacks are folded into the same stream so
// the loop is the only mutator.
type message interface{ isMessage() }

type queryMsg struct{}
type updateMsg struct {
	lang  string
	force bool
}
type cancelMsg struct{}
type deleteMsg struct{}
type stepDoneMsg struct {
	series models.Series
	gen    uint64
}
type stepErrMsg struct {
	series  models.Series
	gen     uint64
	failure models.UpdateFailure
}
type storeChangedMsg struct{}

func (queryMsg) isMessage()        {}
func (updateMsg) isMessage()       {}
func (cancelMsg) isMessage()       {}
func (deleteMsg) isMessage()       {}
func (stepDoneMsg) isMessage()     {}
func (stepErrMsg) isMessage()      {}
func (storeChangedMsg) isMessage() {}

// NewManager creates an orchestrator. Nothing happens until Run.
func NewManager(opener StoreOpener, logger *events.Logger) *Manager {
	return &Manager{
		opener:  opener,
		logger:  logger.WithField("component", "update_manager"),
		msgs:    make(chan message, 64),
		notifs:  make(chan Notification, 128),
		stopped: make(chan struct{}),
	}
}

// Notifications returns the outbound message stream. It is closed when
// Run returns. Single consumer.
func (m *Manager) Notifications() <-chan Notification {
	return m.notifs
}

// Query requests one snapshot publication.
func (m *Manager) Query() { m.post(queryMsg{}) }

// Update requests an update cycle for a language.
func (m *Manager) Update(lang string, force bool) {
	m.post(updateMsg{lang: lang, force: force})
}

// Cancel aborts any running cycle.
func (m *Manager) Cancel() { m.post(cancelMsg{}) }

// Delete destroys the persistent store and all dataset data.
func (m *Manager) Delete() { m.post(deleteMsg{}) }

// post enqueues a message unless the run loop has exited.
func (m *Manager) post(msg message) {
	select {
	case m.msgs <- msg:
	case <-m.stopped:
	}
}

// Run opens the store and processes messages until ctx is cancelled.
// A store that cannot be opened disables updates for the lifetime of
// the process: requests are then dropped silently rather than erroring
// on every periodic check.
func (m *Manager) Run(ctx context.Context) error {
	defer func() {
		close(m.stopped)
		close(m.notifs)
	}()

	st, err := m.opener(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.WithError(err).Error("Store initialization failed; updates disabled")
	} else {
		m.store = st
		unsubscribe := st.Subscribe(func() { m.post(storeChangedMsg{}) })
		defer unsubscribe()
		defer func() {
			if m.store != nil {
				if err := m.store.Close(); err != nil {
					m.logger.WithError(err).Warn("Failed to close store")
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if m.job != nil && m.store != nil {
				m.store.CancelUpdate(m.job.Current)
				m.job = nil
			}
			return ctx.Err()
		case msg := <-m.msgs:
			m.handle(msg)
		}
	}
}

func (m *Manager) handle(msg message) {
	switch msg := msg.(type) {
	case queryMsg:
		if m.store == nil {
			return
		}
		m.publishSnapshot()
	case updateMsg:
		m.requestUpdate(msg.lang, msg.force)
	case cancelMsg:
		m.cancelUpdate()
	case deleteMsg:
		m.deleteStore()
	case stepDoneMsg:
		m.stepComplete(msg.series, msg.gen)
	case stepErrMsg:
		m.stepFailed(msg.series, msg.gen, msg.failure)
	case storeChangedMsg:
		if m.store == nil {
			return
		}
		m.publishSnapshot()
	}
}

// requestUpdate starts, restarts, or de-duplicates an update cycle.
func (m *Manager) requestUpdate(lang string, force bool) {
	if m.store == nil {
		m.logger.Debug("Store not available, dropping update request")
		return
	}

	norm, err := models.NormalizeLang(lang)
	if err != nil {
		m.emitError(err, SeverityError)
		return
	}

	if m.job != nil && m.job.Lang == norm && (m.job.Forced || !force) {
		// The requested refresh is effectively already in flight.
		m.logger.WithFields(map[string]interface{}{
			"lang":  norm,
			"force": force,
		}).Debug("Update already running, ignoring request")
		return
	}

	if m.job != nil {
		// A forced intent must survive supersession.
		force = force || m.job.Forced
		m.store.CancelUpdate(m.job.Current)
		m.job = nil
	}

	if force {
		m.store.ClearCachedVersionInfo()
	}

	// Cycles are atomic: always restart from the first series.
	m.gen++
	m.job = &Job{Lang: norm, Current: models.FirstSeries, Forced: force}
	m.logger.WithFields(map[string]interface{}{
		"lang":  norm,
		"force": force,
	}).Info("Starting update cycle")

	m.publishSnapshot()
	m.startStep()
}

// startStep hands the job's current series to the store's retry
// primitive. The callbacks post back onto the message loop, stamped
// with the cycle generation they belong to: a superseded cycle's late
// callbacks must not be mistaken for the replacement's, which runs the
// same series under the same name.
func (m *Manager) startStep() {
	series := m.job.Current
	gen := m.gen
	m.store.UpdateWithRetry(store.UpdateOptions{
		Series: series,
		Lang:   m.job.Lang,
		OnComplete: func() {
			m.post(stepDoneMsg{series: series, gen: gen})
		},
		OnError: func(f models.UpdateFailure) {
			m.post(stepErrMsg{series: series, gen: gen, failure: f})
		},
	})
}

// stepComplete advances the cycle, or finishes it after words.
func (m *Manager) stepComplete(series models.Series, gen uint64) {
	if m.job == nil || gen != m.gen {
		// Late callback from a superseded or cancelled cycle.
		return
	}

	m.lastError = nil
	m.breadcrumb(fmt.Sprintf("Updated %s data", series))

	if next, ok := series.Next(); ok {
		m.job.Current = next
		m.publishSnapshot()
		m.startStep()
		return
	}

	m.job = nil
	m.publishSnapshot()

	var lastCheck time.Time
	if states := m.store.States(); len(states) > 0 {
		snap := models.Snapshot{Datasets: states}
		lastCheck = snap.LatestCheck()
	}
	m.emit(Notification{
		Type:      NotifUpdateComplete,
		Timestamp: time.Now(),
		LastCheck: lastCheck,
	})
	m.logger.Info("Update cycle complete")
}

// stepFailed folds an error callback into bookkeeping and decides how
// loudly to surface it.
func (m *Manager) stepFailed(series models.Series, gen uint64, f models.UpdateFailure) {
	if gen != m.gen {
		// A superseded cycle winding down; the replacement owns the slot
		// and its snapshot must not inherit this failure.
		m.logger.WithField("series", series).Debug("Ignoring stale update callback")
		return
	}

	kind := f.Kind()

	switch {
	case f.WillRetry():
		// The store retries on its own; an individual transient
		// failure is only a breadcrumb. A step that keeps failing
		// escalates once, at the threshold.
		m.breadcrumb(fmt.Sprintf("Retrying %s update (attempt %d): %v", series, f.RetryCount, f.Err))
		if f.RetryCount == retryWarningThreshold {
			m.emitError(f.Err, SeverityWarning)
		}
	case kind == models.KindAborted, kind == models.KindOffline:
		// Expected, user- or network-caused. Not actionable.
		m.breadcrumb(fmt.Sprintf("%s update stopped: %v", series, f.Err))
	default:
		m.emitError(f.Err, SeverityError)
	}

	if !f.WillRetry() && m.job != nil {
		// The retry primitive gave up; the cycle is abandoned.
		m.job = nil
	}

	failure := f
	m.lastError = &failure
	m.publishSnapshot()
}

// cancelUpdate clears the job slot synchronously. The store-layer
// cancel is best-effort; its late abort callback is already stale by
// the time it arrives.
func (m *Manager) cancelUpdate() {
	if m.job == nil {
		return
	}

	m.store.CancelUpdate(m.job.Current)
	m.job = nil
	m.publishSnapshot()
}

// deleteStore destroys all persistent data. In-flight work is not
// stopped first: destruction invalidates it.
func (m *Manager) deleteStore() {
	if m.store == nil {
		return
	}

	st := m.store
	m.store = nil
	m.job = nil
	m.lastError = nil

	if err := st.Destroy(); err != nil {
		m.emitError(fmt.Errorf("delete dictionary data: %w", err), SeverityError)
		return
	}
	m.breadcrumb("Deleted all dictionary data")
}

// publishSnapshot derives and emits the aggregate state. Withheld
// while any dataset is still uninitialized.
func (m *Manager) publishSnapshot() {
	if m.store == nil {
		// A late callback can land here after the store was deleted.
		return
	}

	var jobState models.UpdateState
	if m.job != nil {
		jobState = m.store.UpdateState(m.job.Current)
	}

	snap := BuildSnapshot(m.store.States(), m.job, jobState, m.lastError)
	if !snap.Initialized() {
		m.logger.Debug("Withholding snapshot until all datasets resolve")
		return
	}

	m.emit(Notification{
		Type:      NotifStateUpdated,
		Timestamp: time.Now(),
		Snapshot:  snap,
	})
}

func (m *Manager) breadcrumb(msg string) {
	m.logger.Debug(msg)
	m.emit(Notification{
		Type:      NotifBreadcrumb,
		Timestamp: time.Now(),
		Message:   msg,
	})
}

func (m *Manager) emitError(err error, severity Severity) {
	if severity == SeverityWarning {
		m.logger.WithError(err).Warn("Update problem")
	} else {
		m.logger.WithError(err).Error("Update failed")
	}
	m.emit(Notification{
		Type:      NotifError,
		Timestamp: time.Now(),
		Err:       err,
		Severity:  severity,
	})
}

func (m *Manager) emit(n Notification) {
	select {
	case m.notifs <- n:
	default:
		// Observer is not keeping up; drop rather than stall the loop.
		m.logger.WithField("type", n.Type).Debug("Notification channel full, dropping")
	}
}
