package domain

// Status is the terminal state of a channel migration
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ContentStats holds the entity markers found in a WordPress export
type ContentStats struct {
	ItemSets int `json:"number_of_itemsets" yaml:"number_of_itemsets"`
	Items    int `json:"number_of_items" yaml:"number_of_items"`
	Media    int `json:"number_of_media" yaml:"number_of_media"`
}

// TaskRecord is one bulk-import task created for a channel. JobID, NewTaskID
// and Error are filled in by the task runner; JobID stays null until a job
// is dispatched.
type TaskRecord struct {
	Importer  string  `json:"importer" yaml:"importer"`
	ID        int     `json:"id" yaml:"id"`
	JobID     *int    `json:"job_id" yaml:"job_id"`
	NewTaskID *int    `json:"new_task_id,omitempty" yaml:"new_task_id,omitempty"`
	Error     *string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Executed reports whether the task runner already obtained a job for the task
func (t TaskRecord) Executed() bool {
	return t.JobID != nil
}

// MigrationOutcome accumulates everything known about one channel's migration
type MigrationOutcome struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Slug   string `json:"slug" yaml:"slug"`
	Editor string `json:"editor" yaml:"editor"`

	SiteID    *int    `json:"site_id" yaml:"site_id"`
	UserID    *int    `json:"user_id" yaml:"user_id"`
	UserLogin *string `json:"user_login" yaml:"user_login"`

	TasksCreated []TaskRecord `json:"tasks_created" yaml:"tasks_created"`

	ContentStats `yaml:",inline"`

	Status       Status  `json:"status" yaml:"status"`
	ErrorMessage *string `json:"error_message" yaml:"error_message"`

	OmekaItemSetsCount *int `json:"omeka_itemsets_count,omitempty" yaml:"omeka_itemsets_count,omitempty"`
	OmekaItemsCount    *int `json:"omeka_items_count,omitempty" yaml:"omeka_items_count,omitempty"`
	OmekaMediaCount    *int `json:"omeka_media_count,omitempty" yaml:"omeka_media_count,omitempty"`
}

// NewMigrationOutcome starts an outcome for channel
func NewMigrationOutcome(channel ChannelDescriptor) *MigrationOutcome {
	return &MigrationOutcome{
		Name:         channel.Name,
		URL:          channel.URL,
		Slug:         channel.Slug,
		Editor:       channel.Editor,
		TasksCreated: []TaskRecord{},
		Status:       StatusError,
	}
}

// Fail marks the outcome as failed. The first message recorded is kept.
func (o *MigrationOutcome) Fail(message string) {
	o.Status = StatusError
	if o.ErrorMessage == nil {
		o.ErrorMessage = &message
	}
}

// Failed reports whether a failure has been recorded
func (o *MigrationOutcome) Failed() bool {
	return o.ErrorMessage != nil
}

// Succeeded reports whether the outcome completed without failure
func (o *MigrationOutcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v
func StringPtr(v string) *string { return &v }
