package account

import (
	"context"

	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
)

// Timeline merges the account's four event sources into one feed sorted by
// entry time, newest first. Each source query is already ordered by its time
// index, so a k-way merge avoids re-sorting the union. More is true when any
// source still has an event at or before the window start.
func (svc *service) Timeline(ctx context.Context, actor core.Actor, email string, window core.TimeWindow) (Timeline, error) {
	if err := guard(actor, email); err != nil {
		return Timeline{}, err
	}
	if _, err := svc.repo.GetAccount(ctx, email); err != nil {
		return Timeline{}, err
	}
	window = window.Resolve()

	sources := []func(context.Context, string, core.TimeWindow) ([]TimelineEntry, bool, error){
		svc.repo.QueryApplicationEvents,
		svc.repo.QueryPurchaseEvents,
		svc.repo.QueryPromotionEvents,
		svc.repo.QueryProjectEvents,
	}
	feeds := make([][]TimelineEntry, len(sources))
	more := false
	for i, query := range sources {
		entries, earlier, err := query(ctx, email, window)
		if err != nil {
			return Timeline{}, errors.Wrap(err, "querying timeline events")
		}
		feeds[i] = entries
		more = more || earlier
	}
	return Timeline{Data: mergeByTimeDesc(feeds), More: more}, nil
}

// mergeByTimeDesc k-way merges feeds that are each sorted by EntryTime
// descending into one descending slice.
func mergeByTimeDesc(feeds [][]TimelineEntry) []TimelineEntry {
	total := 0
	for _, feed := range feeds {
		total += len(feed)
	}
	merged := make([]TimelineEntry, 0, total)
	for len(merged) < total {
		best := -1
		for i, feed := range feeds {
			if len(feed) == 0 {
				continue
			}
			if best < 0 || feed[0].EntryTime.After(feeds[best][0].EntryTime) {
				best = i
			}
		}
		merged = append(merged, feeds[best][0])
		feeds[best] = feeds[best][1:]
	}
	return merged
}

// Statistics aggregates the account's volunteering summary over the window:
// approved hours and positions on finished projects, the average moderator
// rating, and per-competence feedback counts.
func (svc *service) Statistics(ctx context.Context, actor core.Actor, email string, window core.TimeWindow) (Statistics, error) {
	if err := guard(actor, email); err != nil {
		return Statistics{}, err
	}
	if _, err := svc.repo.GetAccount(ctx, email); err != nil {
		return Statistics{}, err
	}
	window = window.Resolve()

	hours, positions, err := svc.repo.GetVolunteeringStats(ctx, email, window)
	if err != nil {
		return Statistics{}, errors.Wrap(err, "querying volunteering stats")
	}
	rating, err := svc.repo.GetAverageRating(ctx, email, window)
	if err != nil {
		return Statistics{}, errors.Wrap(err, "querying average rating")
	}
	competences, err := svc.repo.QueryCompetenceStats(ctx, email, window)
	if err != nil {
		return Statistics{}, errors.Wrap(err, "querying competence stats")
	}
	return Statistics{
		Hours:       hours,
		Positions:   positions,
		Rating:      rating,
		Competences: competences,
	}, nil
}
