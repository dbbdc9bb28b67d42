package store

import (
	"context"
	"fmt"

	"github.com/deeplearn-app/deeplearn/internal/model"
)

// ExportUsers groups every stored event by user and session tag, in arrival order.
func (s *Store) ExportUsers(ctx context.Context) ([]model.UserResults, error) {
	events, err := s.ListEvents(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var results []model.UserResults
	userIdx := make(map[string]int)
	for _, ev := range events {
		i, ok := userIdx[ev.UserID]
		if !ok {
			i = len(results)
			userIdx[ev.UserID] = i
			results = append(results, model.UserResults{UserID: ev.UserID})
		}
		u := &results[i]

		j := -1
		for k := range u.Sessions {
			if u.Sessions[k].SessionTag == ev.SessionTag {
				j = k
				break
			}
		}
		if j < 0 {
			u.Sessions = append(u.Sessions, model.SessionResult{SessionTag: ev.SessionTag})
			j = len(u.Sessions) - 1
		}
		sr := &u.Sessions[j]
		sr.Events = append(sr.Events, ev)
		sr.NumEvents++
		if ev.Correct {
			sr.NumCorrect++
		}
	}

	return results, nil
}
