package domain

import (
	"time"

	"github.com/google/uuid"
)

// Queue names consumed by the worker pool.
const (
	QueueDispatch = "dispatch"
	QueueWebhook  = "webhook"
)

// Job is the unit of work carried on a named queue. Attempt counts from 1 on
// first execution; the scheduler increments it on each re-enqueue.
type Job struct {
	ID          uuid.UUID `json:"id"`
	Queue       string    `json:"queue"`
	ReferenceID uuid.UUID `json:"reference_id"` // document or webhook delivery id
	Attempt     int       `json:"attempt"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// NewJob creates a first-attempt job for a queue and reference.
func NewJob(queue string, refID uuid.UUID) Job {
	return Job{
		ID:          uuid.New(),
		Queue:       queue,
		ReferenceID: refID,
		Attempt:     1,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// Retry returns a copy of the job with the attempt counter advanced.
func (j Job) Retry() Job {
	j.ID = uuid.New()
	j.Attempt++
	j.EnqueuedAt = time.Now().UTC()
	return j
}
