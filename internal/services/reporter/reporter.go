// Package reporter fans interval reports out to every enabled destination:
// the NATS publisher, the SQLite store, or both.
package reporter

import (
	"errors"
	"fmt"

	"lanewatch-go/internal/models"
)

// SendFunc delivers one report pair to a single destination.
type SendFunc func(tr *models.TrafficReport, pr *models.PerfReport) error

type destination struct {
	name string
	send SendFunc
}

// Composite delivers each report pair to all destinations. Every
// destination is attempted even when an earlier one fails, so a NATS outage
// does not stop reports from reaching the local store.
type Composite struct {
	dests []destination
}

// New returns an empty composite; destinations are attached with Add.
func New() *Composite {
	return &Composite{}
}

// Add registers a destination under a name used in error messages.
func (c *Composite) Add(name string, send SendFunc) {
	c.dests = append(c.dests, destination{name: name, send: send})
}

// Empty reports whether no destination is configured. Callers skip the
// reporter entirely in that case.
func (c *Composite) Empty() bool {
	return len(c.dests) == 0
}

// Publish hands the report pair to every destination and joins whatever
// went wrong.
func (c *Composite) Publish(tr *models.TrafficReport, pr *models.PerfReport) error {
	var errs []error
	for _, d := range c.dests {
		if err := d.send(tr, pr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	return errors.Join(errs...)
}
