// Package editors restricts editor accounts to the sites they were granted
// and to their own assets, via the IsolatedSites module settings.
package editors

import (
	"context"
	"log/slog"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka"
)

// Settings applied to every editor account
var Settings = map[string]any{
	"o-module-isolatedsites:limit_to_granted_sites": true,
	"o-module-isolatedsites:limit_to_own_assets":    true,
}

// Role whose accounts are isolated
const Role = "editor"

// User statuses in a Result
const (
	StatusUpdated     = "updated"
	StatusWouldUpdate = "would_update"
	StatusError       = "error"
)

// UserResult is the outcome for one account
type UserResult struct {
	ID     int    `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Status string `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result summarizes an isolation pass
type Result struct {
	Updated int          `json:"updated" yaml:"updated"`
	Errors  int          `json:"errors" yaml:"errors"`
	Users   []UserResult `json:"users" yaml:"users"`
}

// Isolator applies the isolation settings
type Isolator struct {
	repo   omeka.Repository
	logger *slog.Logger
}

// NewIsolator creates a new isolator
func NewIsolator(repo omeka.Repository, logger *slog.Logger) *Isolator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Isolator{repo: repo, logger: logger}
}

// Apply updates every editor account. With dryRun nothing is written. A
// failing account is recorded and the others are still updated; only the
// initial listing can fail the whole pass.
func (i *Isolator) Apply(ctx context.Context, dryRun bool) (*Result, error) {
	users, err := i.repo.ListUsers(ctx, Role)
	if err != nil {
		return nil, err
	}

	result := &Result{Users: []UserResult{}}
	if len(users) == 0 {
		i.logger.Warn("no users with role", "role", Role)
		return result, nil
	}
	i.logger.Info("isolating editor accounts", "users", len(users), "dry_run", dryRun)

	for _, u := range users {
		entry := UserResult{ID: u.ID, Name: u.Name, Email: u.Email}
		if dryRun {
			i.logger.Info("would update user", "user_id", u.ID, "email", u.Email)
			entry.Status = StatusWouldUpdate
			result.Users = append(result.Users, entry)
			continue
		}

		if err := i.repo.UpdateUser(ctx, u.ID, Settings); err != nil {
			i.logger.Error("cannot update user", "user_id", u.ID, "email", u.Email, "error", err)
			entry.Status = StatusError
			entry.Error = err.Error()
			result.Errors++
		} else {
			i.logger.Info("user updated", "user_id", u.ID, "email", u.Email)
			entry.Status = StatusUpdated
			result.Updated++
		}
		result.Users = append(result.Users, entry)
	}
	return result, nil
}
