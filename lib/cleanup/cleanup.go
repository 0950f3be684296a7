// Package cleanup removes contact records that a rejected submission
// speculatively created. The host request lifecycle drives it through two
// hooks: LeadSaved after the record is persisted and ResponseFinished after
// the rejection has been written to the client, so the deletion can never
// change what the submitter saw.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uvensys/formshield/lib/lead"
	"github.com/uvensys/formshield/lib/store"
)

var (
	leadsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formshield_cleanup_deletions_total",
		Help: "The total number of contact records deleted after a rejected submission",
	})

	deletionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formshield_cleanup_failures_total",
		Help: "The total number of contact record deletions that failed at the storage layer",
	})
)

type state int

const (
	stateWaitingForPersist state = iota
	stateWaitingForResponseEnd
	stateDone
)

// Coordinator tracks one rejected submission through the persist and
// response phases and deletes the contact record at most once.
type Coordinator struct {
	leads *lead.Model
	lg    *slog.Logger

	mu     sync.Mutex
	st     state
	leadID string
}

func New(leads *lead.Model, lg *slog.Logger) *Coordinator {
	return &Coordinator{
		leads: leads,
		lg:    lg,
		st:    stateWaitingForPersist,
	}
}

// LeadSaved records the outcome of the persistence phase. Only a record
// created in this request arms the deletion; an update to a pre-existing
// contact retires the coordinator without side effects. The identifier is
// captured here because the record object itself may not live until the
// response phase.
func (c *Coordinator) LeadSaved(ctx context.Context, id string, isNew bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != stateWaitingForPersist {
		return
	}

	if !isNew {
		c.st = stateDone
		return
	}

	c.leadID = id
	c.st = stateWaitingForResponseEnd
}

// ResponseFinished runs the deletion once the client has received the
// rejection. A record that is already gone counts as success. Storage
// errors are reported but never surfaced to the request, which has ended
// by the time this runs.
func (c *Coordinator) ResponseFinished(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != stateWaitingForResponseEnd {
		c.st = stateDone
		return
	}

	c.st = stateDone

	if _, err := c.leads.Get(ctx, c.leadID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}

		deletionFailures.Inc()
		c.lg.Error("can't re-fetch contact record for cleanup", "id", c.leadID, "err", err)
		return
	}

	if err := c.leads.Delete(ctx, c.leadID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}

		deletionFailures.Inc()
		c.lg.Error("can't delete contact record", "id", c.leadID, "err", err)
		return
	}

	leadsDeleted.Inc()
	c.lg.Info("deleted contact record from rejected submission", "id", c.leadID)
}
