package service

import (
	"context"

	"emusync/jobstore"
	"emusync/models"
)

// Publisher fans job events out to live subscribers.
type Publisher interface {
	PublishLog(jobID, line string)
	PublishStatus(jobID string, status models.SyncStatus)
}

type nopPublisher struct{}

func (nopPublisher) PublishLog(string, string)               {}
func (nopPublisher) PublishStatus(string, models.SyncStatus) {}

// JobJournal appends lines to a job record and forwards them to subscribers.
// It is the journal the command runner and the orchestrator write through.
type JobJournal struct {
	store     jobstore.Store
	publisher Publisher
}

func NewJobJournal(store jobstore.Store, publisher Publisher) *JobJournal {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &JobJournal{store: store, publisher: publisher}
}

func (j *JobJournal) Append(ctx context.Context, jobID, line string) error {
	_, err := j.store.Update(ctx, jobID, func(rec *models.DeviceSyncRecord) error {
		rec.Output = append(rec.Output, line)
		return nil
	})
	if err != nil {
		return err
	}
	j.publisher.PublishLog(jobID, line)
	return nil
}
