package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type RepairReport struct {
	RunID       string   `json:"runId"`
	FixedTopics []int64  `json:"fixedTopics"`
	FixedBoards []int64  `json:"fixedBoards"`
	Failures    []string `json:"failures,omitempty"`
}

// RepairPointers detects and corrects stale last-message pointers on
// topics and boards. Idempotent: a second run right after a clean one
// finds nothing. Individual bad rows never abort the run; only a total
// failure to reach the store does.
func (s *Service) RepairPointers(ctx context.Context) (RepairReport, error) {
	report := RepairReport{
		RunID:       uuid.NewString(),
		FixedTopics: []int64{},
		FixedBoards: []int64{},
	}

	topicIDs, err := s.store.BrokenTopicPointers(ctx)
	if err != nil {
		s.logger.Error("scan topic pointers", "run_id", report.RunID, "error", err)
		return RepairReport{}, storageError()
	}
	for _, id := range topicIDs {
		if err := s.store.FixTopicPointer(ctx, id); err != nil {
			s.logger.Warn("topic pointer fix failed", "run_id", report.RunID, "topic_id", id, "error", err)
			report.Failures = append(report.Failures, fmt.Sprintf("topic %d: %v", id, err))
			continue
		}
		report.FixedTopics = append(report.FixedTopics, id)
	}

	boardIDs, err := s.store.BrokenBoardPointers(ctx)
	if err != nil {
		s.logger.Error("scan board pointers", "run_id", report.RunID, "error", err)
		return RepairReport{}, storageError()
	}
	for _, id := range boardIDs {
		if err := s.store.FixBoardPointer(ctx, id); err != nil {
			s.logger.Warn("board pointer fix failed", "run_id", report.RunID, "board_id", id, "error", err)
			report.Failures = append(report.Failures, fmt.Sprintf("board %d: %v", id, err))
			continue
		}
		report.FixedBoards = append(report.FixedBoards, id)
	}

	s.logger.Info("pointer repair complete",
		"run_id", report.RunID,
		"fixed_topics", len(report.FixedTopics),
		"fixed_boards", len(report.FixedBoards),
		"failures", len(report.Failures))
	return report, nil
}
