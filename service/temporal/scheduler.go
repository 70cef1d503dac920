package temporal

import (
	"context"
	"strconv"
	"time"
)

// Scheduler starts block analyses and manages recurring watch schedules.
type Scheduler interface {
	// StartAnalyzeBlock starts one AnalyzeBlockWorkflow and returns its
	// workflow and run IDs.
	StartAnalyzeBlock(ctx context.Context, input AnalyzeBlockInput) (string, string, error)

	// UpsertWatchSchedule analyzes the latest block every interval.
	UpsertWatchSchedule(ctx context.Context, name string, interval time.Duration, input AnalyzeBlockInput) error

	// DeleteWatchSchedule stops a watch schedule.
	DeleteWatchSchedule(ctx context.Context, name string) error
}

// workflowID is empty for latest-slot analyses so Temporal assigns one.
func workflowID(slot uint64) string {
	if slot == 0 {
		return ""
	}
	return "analyze-block-" + strconv.FormatUint(slot, 10)
}

// scheduleID returns the Temporal schedule ID for a watch name.
func scheduleID(name string) string {
	return "watch-blocks-" + name
}

var (
	_ Scheduler = (*Client)(nil)
	_ Scheduler = (*MockScheduler)(nil)
)
