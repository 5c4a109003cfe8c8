package enrollment

import "sync"

type draftKey struct {
	owner      string
	scheduleID int
}

// Drafts holds the open enrollment drafts of every operator, one per
// (operator session, schedule).
type Drafts struct {
	mu     sync.Mutex
	drafts map[draftKey]*Controller
}

// NewDrafts creates an empty registry.
func NewDrafts() *Drafts {
	return &Drafts{drafts: make(map[draftKey]*Controller)}
}

// Open stores a fresh draft, replacing and cancelling any previous one.
func (d *Drafts) Open(owner string, c *Controller) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := draftKey{owner, c.ScheduleID()}
	if prev, ok := d.drafts[k]; ok && prev != c {
		prev.Cancel()
	}
	d.drafts[k] = c
}

// Get returns the open draft, dropping it if it has closed.
func (d *Drafts) Get(owner string, scheduleID int) (*Controller, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := draftKey{owner, scheduleID}
	c, ok := d.drafts[k]
	if !ok {
		return nil, false
	}
	if c.Closed() {
		delete(d.drafts, k)
		return nil, false
	}
	return c, true
}

// Discard cancels and forgets a draft.
func (d *Drafts) Discard(owner string, scheduleID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := draftKey{owner, scheduleID}
	if c, ok := d.drafts[k]; ok {
		c.Cancel()
		delete(d.drafts, k)
	}
}

// DiscardOwner drops every draft of an operator, used on logout.
func (d *Drafts) DiscardOwner(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, c := range d.drafts {
		if k.owner == owner {
			c.Cancel()
			delete(d.drafts, k)
		}
	}
}
