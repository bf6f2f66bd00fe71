package domain

import "time"

// RepositoryCounts are the resource counts read back from the repository
type RepositoryCounts struct {
	ItemSets int `json:"item_sets" yaml:"item_sets"`
	Items    int `json:"items" yaml:"items"`
	Media    int `json:"media" yaml:"media"`
}

// ReportSummary aggregates a whole report
type ReportSummary struct {
	Channels      int              `json:"channels" yaml:"channels"`
	Succeeded     int              `json:"succeeded" yaml:"succeeded"`
	Failed        int              `json:"failed" yaml:"failed"`
	TasksCreated  int              `json:"tasks_created" yaml:"tasks_created"`
	TasksExecuted int              `json:"tasks_executed" yaml:"tasks_executed"`
	TasksFailed   int              `json:"tasks_failed" yaml:"tasks_failed"`
	TasksPending  int              `json:"tasks_pending" yaml:"tasks_pending"`
	Expected      ContentStats     `json:"expected" yaml:"expected"`
	Repository    RepositoryCounts `json:"repository" yaml:"repository"`
	// Counted is the number of channels whose repository counts are known
	Counted     int       `json:"counted" yaml:"counted"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// ChannelSummary is one row of the per-channel view
type ChannelSummary struct {
	Slug          string            `json:"slug" yaml:"slug"`
	Name          string            `json:"name" yaml:"name"`
	Status        Status            `json:"status" yaml:"status"`
	SiteID        *int              `json:"site_id" yaml:"site_id"`
	TasksCreated  int               `json:"tasks_created" yaml:"tasks_created"`
	TasksExecuted int               `json:"tasks_executed" yaml:"tasks_executed"`
	TasksFailed   int               `json:"tasks_failed" yaml:"tasks_failed"`
	Expected      ContentStats      `json:"expected" yaml:"expected"`
	Repository    *RepositoryCounts `json:"repository,omitempty" yaml:"repository,omitempty"`
	Error         *string           `json:"error,omitempty" yaml:"error,omitempty"`
}
