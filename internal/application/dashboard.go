package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Gribbirg/deadline-mate/internal/domain"
)

// Dashboard gathers assignments, submissions and groups in parallel and
// arranges them by deadline for the current user.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	user, ok := s.session.CurrentUser()
	if !ok {
		profile, err := s.Profile(ctx)
		if err != nil {
			return Dashboard{}, err
		}
		user = profile
	}

	var (
		wg          sync.WaitGroup
		assignments []domain.Assignment
		submissions []domain.Submission
		groups      []domain.Group
		errs        = make([]error, 3)
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		assignments, errs[0] = s.ListAssignments(ctx)
	}()
	go func() {
		defer wg.Done()
		submissions, errs[1] = s.ListSubmissions(ctx)
	}()
	go func() {
		defer wg.Done()
		groups, errs[2] = s.ListGroups(ctx)
	}()
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return Dashboard{}, fmt.Errorf("build dashboard: %w", err)
	}

	now := s.clock.Now()
	byAssignment := make(map[domain.AssignmentID][]domain.Submission, len(submissions))
	for _, submission := range submissions {
		id := submission.Assignment.ID
		byAssignment[id] = append(byAssignment[id], submission)
	}

	items := make([]DeadlineItem, 0, len(assignments))
	for _, assignment := range assignments {
		if user.IsStudent() && assignment.Status != domain.AssignmentPublished {
			continue
		}
		if assignment.Status == domain.AssignmentArchived {
			continue
		}

		item := DeadlineItem{
			Assignment: assignment.Summary(),
			Deadline:   assignment.Deadline,
			Remaining:  domain.Remaining(assignment.Deadline, now),
		}
		item.Overdue = item.Remaining < 0

		related := byAssignment[assignment.ID]
		if user.IsTeacher() {
			item.SubmissionCount = len(related)
			for _, submission := range related {
				if submission.Status == domain.SubmissionSubmitted {
					item.PendingGrades++
				}
			}
		} else if len(related) > 0 {
			latest := related[0]
			for _, submission := range related[1:] {
				if submission.SubmittedAt.After(latest.SubmittedAt) {
					latest = submission
				}
			}
			item.Submission = &latest
		}

		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Deadline.Before(items[j].Deadline)
	})

	return Dashboard{
		User:        user,
		GeneratedAt: now,
		Groups:      groups,
		Items:       items,
	}, nil
}
