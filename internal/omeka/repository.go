// Package omeka talks to the Omeka S REST API: sites, users, item sets and
// the bulk-import module's importers, mappings and imports.
package omeka

import (
	"context"
	"encoding/json"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
)

// Credentials is an Omeka S API key pair
type Credentials struct {
	KeyIdentity   string
	KeyCredential string
}

// Empty reports whether no key is configured
func (c Credentials) Empty() bool {
	return c.KeyIdentity == "" && c.KeyCredential == ""
}

// Ref is a reference to another resource
type Ref struct {
	ID int `json:"o:id"`
}

// Site is an Omeka S site
type Site struct {
	ID          int              `json:"o:id"`
	Title       string           `json:"o:title"`
	Slug        string           `json:"o:slug"`
	Permissions []SitePermission `json:"o:site_permission"`
	ItemSets    []SiteItemSet    `json:"o:site_item_set"`
}

// SitePermission grants a user a role on a site
type SitePermission struct {
	User Ref    `json:"o:user"`
	Role string `json:"o:role"`
}

// SiteItemSet attaches an item set to a site
type SiteItemSet struct {
	ItemSet Ref `json:"o:item_set"`
}

// HasMember reports whether userID already holds a permission on the site
func (s *Site) HasMember(userID int) bool {
	for _, p := range s.Permissions {
		if p.User.ID == userID {
			return true
		}
	}
	return false
}

// HasItemSet reports whether the item set is attached to the site
func (s *Site) HasItemSet(itemSetID int) bool {
	for _, a := range s.ItemSets {
		if a.ItemSet.ID == itemSetID {
			return true
		}
	}
	return false
}

// User is an Omeka S user account
type User struct {
	ID       int    `json:"o:id"`
	Name     string `json:"o:name"`
	Email    string `json:"o:email"`
	Role     string `json:"o:role"`
	IsActive bool   `json:"o:is_active"`
}

// ItemSet is an Omeka S item set. Raw keeps the full representation so that
// property values can be edited and written back.
type ItemSet struct {
	ID    int            `json:"o:id"`
	Title string         `json:"o:title"`
	Raw   map[string]any `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps the whole document in Raw
func (s *ItemSet) UnmarshalJSON(data []byte) error {
	type plain ItemSet
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ItemSet(p)
	s.Raw = raw
	return nil
}

// ValuesWithout returns the values of property minus those whose literal
// text equals value, and whether anything was removed.
func (s *ItemSet) ValuesWithout(property, value string) ([]any, bool) {
	values, _ := s.Raw[property].([]any)
	kept := make([]any, 0, len(values))
	removed := false
	for _, v := range values {
		if m, ok := v.(map[string]any); ok {
			if text, _ := m["@value"].(string); text == value {
				removed = true
				continue
			}
		}
		kept = append(kept, v)
	}
	return kept, removed
}

// Importer is a bulk-import pipeline stored in the repository
type Importer struct {
	ID     int            `json:"o:id"`
	Label  string         `json:"o:label"`
	Config map[string]any `json:"o:config"`
}

// Mapping is a stored bulk-import mapping
type Mapping struct {
	ID    int    `json:"o:id"`
	Label string `json:"o:label"`
}

// ImportJobRequest describes one channel export to import with one importer
type ImportJobRequest struct {
	ImporterID    int
	ImporterLabel string
	FileName      string // export file name inside the preload directory
	FileSize      int64
	SiteLabel     string
	SiteID        int
	OwnerID       int
}

// ImportJob is a bulk import. Job is set once the repository dispatched it.
type ImportJob struct {
	ID     int    `json:"o:id"`
	Status string `json:"o:status"`
	Job    *Ref   `json:"o:job"`
}

// TaskExecution is the result of running a deferred import
type TaskExecution struct {
	TaskID    int
	NewTaskID int
	JobID     int
}

// Repository is the set of Omeka S operations used by the migrator
type Repository interface {
	CreateSite(ctx context.Context, title, slug string) (*Site, error)
	// FindSiteBySlug returns nil when no site has the slug
	FindSiteBySlug(ctx context.Context, slug string) (*Site, error)
	GetSite(ctx context.Context, id int) (*Site, error)
	UpdateSite(ctx context.Context, id int, patch map[string]any) error

	CreateUser(ctx context.Context, name, email, role string) (*User, error)
	// FindUserByEmail returns nil when no user has the email
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, role string) ([]User, error)
	UpdateUser(ctx context.Context, id int, patch map[string]any) error
	AddUserToSite(ctx context.Context, siteID, userID int, role string) error

	FindImporterByLabel(ctx context.Context, label string) (*Importer, error)
	FindMappingByLabel(ctx context.Context, label string) (*Mapping, error)
	CreateImporter(ctx context.Context, def domain.ImporterDefinition) (*Importer, error)
	CreateImportJob(ctx context.Context, req ImportJobRequest) (*ImportJob, error)
	ExecuteTask(ctx context.Context, taskID int) (*TaskExecution, error)
	DeleteImport(ctx context.Context, id int) error

	SearchItemSets(ctx context.Context, property, value string) ([]ItemSet, error)
	UpdateItemSet(ctx context.Context, id int, patch map[string]any) error

	// Count returns the number of resources ("items", "item_sets", "media") in a site
	Count(ctx context.Context, resource string, siteID int) (int, error)

	// As returns a repository bound to other credentials
	As(creds Credentials) Repository
}
