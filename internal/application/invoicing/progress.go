package invoicing

import (
	"sync"

	"github.com/google/uuid"
)

// Progress is one snapshot of a background job. Done flips on the final
// snapshot, which also carries the summary counts.
type Progress struct {
	JobID   string `json:"job_id"`
	Total   int    `json:"total"`
	Current int    `json:"current"`
	Updated int    `json:"updated"`
	Failed  int    `json:"failed"`
	Done    bool   `json:"done"`
}

// ProgressHub tracks background jobs and fans progress out to subscribers.
// Snapshots are also kept for polling clients; subscription channels never
// block the publisher (slow consumers drop intermediate updates and still
// get the latest on the next receive).
type ProgressHub struct {
	mu        sync.RWMutex
	jobs      map[string]Progress
	listeners map[string][]chan Progress
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		jobs:      map[string]Progress{},
		listeners: map[string][]chan Progress{},
	}
}

// Begin registers a new job and returns its id.
func (h *ProgressHub) Begin(total int) string {
	id := uuid.New().String()
	h.mu.Lock()
	h.jobs[id] = Progress{JobID: id, Total: total}
	h.mu.Unlock()
	return id
}

// Publish stores the snapshot and notifies subscribers.
func (h *ProgressHub) Publish(p Progress) {
	h.mu.Lock()
	h.jobs[p.JobID] = p
	subs := h.listeners[p.JobID]
	if p.Done {
		delete(h.listeners, p.JobID)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		if p.Done {
			// The final snapshot must land; displace a stale buffered one.
			select {
			case <-ch:
			default:
			}
			ch <- p
			close(ch)
			continue
		}
		select {
		case ch <- p:
		default:
			// Drop for slow consumers; the snapshot remains pollable.
		}
	}
}

// Snapshot returns the job's latest progress for polling clients.
func (h *ProgressHub) Snapshot(jobID string) (Progress, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.jobs[jobID]
	return p, ok
}

// Subscribe returns a channel that receives subsequent snapshots; it is
// closed when the job completes. Unknown or finished jobs get an immediately
// closed channel after the final snapshot.
func (h *ProgressHub) Subscribe(jobID string) <-chan Progress {
	ch := make(chan Progress, 1)
	h.mu.Lock()
	p, ok := h.jobs[jobID]
	if !ok || p.Done {
		h.mu.Unlock()
		if ok {
			ch <- p
		}
		close(ch)
		return ch
	}
	h.listeners[jobID] = append(h.listeners[jobID], ch)
	h.mu.Unlock()
	return ch
}
