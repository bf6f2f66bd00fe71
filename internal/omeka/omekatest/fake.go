// Package omekatest provides an in-memory omeka.Repository for tests.
package omekatest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka"
)

// Import is a stored bulk import
type Import struct {
	ID         int
	ImporterID int
	Comment    string
	FileName   string
	OwnerID    int
	JobID      *int
}

// Fake keeps sites, users, importers, imports and item sets in memory.
// Errors keyed "Method" or "Method:key" make the matching call fail; the key
// is the slug, email, importer label or numeric id the call is about.
type Fake struct {
	mu     sync.Mutex
	nextID int

	Sites     map[int]*omeka.Site
	Users     map[int]*omeka.User
	Settings  map[int]map[string]any
	Importers map[int]*omeka.Importer
	Mappings  []omeka.Mapping
	Imports   map[int]*Import
	ItemSets  map[int]*omeka.ItemSet
	Counts    map[string]int

	Errors map[string]error
	Calls  []string
	AsUsed []omeka.Credentials
}

// New returns an empty fake
func New() *Fake {
	return &Fake{
		nextID:    100,
		Sites:     map[int]*omeka.Site{},
		Users:     map[int]*omeka.User{},
		Settings:  map[int]map[string]any{},
		Importers: map[int]*omeka.Importer{},
		Imports:   map[int]*Import{},
		ItemSets:  map[int]*omeka.ItemSet{},
		Counts:    map[string]int{},
		Errors:    map[string]error{},
	}
}

// RemoteFailure is a ready-made remote error for Errors
func RemoteFailure(status int) error {
	return apperrors.NewRemoteError(fmt.Sprintf("remote returned %d", status), status, nil)
}

// CallCount returns how many times method was called
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// AddItemSet stores an item set carrying property=value
func (f *Fake) AddItemSet(property, value string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.ItemSets[id] = &omeka.ItemSet{ID: id, Raw: map[string]any{
		"o:id":   float64(id),
		property: []any{map[string]any{"@value": value, "type": "literal"}},
	}}
	return id
}

func (f *Fake) id() int {
	f.nextID++
	return f.nextID
}

func (f *Fake) call(method string, key any) error {
	f.Calls = append(f.Calls, method)
	if err, ok := f.Errors[fmt.Sprintf("%s:%v", method, key)]; ok {
		return err
	}
	if err, ok := f.Errors[method]; ok {
		return err
	}
	return nil
}

func notFound(kind string, id int) error {
	return apperrors.NewRemoteError(fmt.Sprintf("%s %d not found", kind, id), http.StatusNotFound, nil)
}

func (f *Fake) CreateSite(ctx context.Context, title, slug string) (*omeka.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateSite", slug); err != nil {
		return nil, err
	}
	site := &omeka.Site{ID: f.id(), Title: title, Slug: slug}
	f.Sites[site.ID] = site
	cp := *site
	return &cp, nil
}

func (f *Fake) FindSiteBySlug(ctx context.Context, slug string) (*omeka.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FindSiteBySlug", slug); err != nil {
		return nil, err
	}
	for _, s := range f.Sites {
		if s.Slug == slug {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) GetSite(ctx context.Context, id int) (*omeka.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetSite", id); err != nil {
		return nil, err
	}
	s, ok := f.Sites[id]
	if !ok {
		return nil, notFound("site", id)
	}
	cp := *s
	cp.ItemSets = append([]omeka.SiteItemSet(nil), s.ItemSets...)
	cp.Permissions = append([]omeka.SitePermission(nil), s.Permissions...)
	return &cp, nil
}

func (f *Fake) UpdateSite(ctx context.Context, id int, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UpdateSite", id); err != nil {
		return err
	}
	s, ok := f.Sites[id]
	if !ok {
		return notFound("site", id)
	}
	if v, ok := patch["o:site_item_set"]; ok {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var sets []omeka.SiteItemSet
		if err := json.Unmarshal(data, &sets); err != nil {
			return err
		}
		s.ItemSets = sets
	}
	return nil
}

func (f *Fake) CreateUser(ctx context.Context, name, email, role string) (*omeka.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateUser", email); err != nil {
		return nil, err
	}
	u := &omeka.User{ID: f.id(), Name: name, Email: email, Role: role, IsActive: true}
	f.Users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *Fake) FindUserByEmail(ctx context.Context, email string) (*omeka.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FindUserByEmail", email); err != nil {
		return nil, err
	}
	for _, u := range f.Users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) ListUsers(ctx context.Context, role string) ([]omeka.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ListUsers", role); err != nil {
		return nil, err
	}
	var out []omeka.User
	for id := 0; id <= f.nextID; id++ {
		if u, ok := f.Users[id]; ok && (role == "" || u.Role == role) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *Fake) UpdateUser(ctx context.Context, id int, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UpdateUser", id); err != nil {
		return err
	}
	if _, ok := f.Users[id]; !ok {
		return notFound("user", id)
	}
	settings := f.Settings[id]
	if settings == nil {
		settings = map[string]any{}
		f.Settings[id] = settings
	}
	for k, v := range patch {
		settings[k] = v
	}
	return nil
}

func (f *Fake) AddUserToSite(ctx context.Context, siteID, userID int, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AddUserToSite", siteID); err != nil {
		return err
	}
	s, ok := f.Sites[siteID]
	if !ok {
		return notFound("site", siteID)
	}
	if s.HasMember(userID) {
		return nil
	}
	s.Permissions = append(s.Permissions, omeka.SitePermission{User: omeka.Ref{ID: userID}, Role: role})
	return nil
}

func (f *Fake) FindImporterByLabel(ctx context.Context, label string) (*omeka.Importer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FindImporterByLabel", label); err != nil {
		return nil, err
	}
	for _, imp := range f.Importers {
		if imp.Label == label {
			cp := *imp
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) FindMappingByLabel(ctx context.Context, label string) (*omeka.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FindMappingByLabel", label); err != nil {
		return nil, err
	}
	for _, m := range f.Mappings {
		if m.Label == label {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) CreateImporter(ctx context.Context, def domain.ImporterDefinition) (*omeka.Importer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateImporter", def.Label); err != nil {
		return nil, err
	}
	cfg, _ := def.Body[domain.KeyConfig].(map[string]any)
	imp := &omeka.Importer{ID: f.id(), Label: def.Label, Config: domain.DeepCopy(cfg)}
	f.Importers[imp.ID] = imp
	cp := *imp
	return &cp, nil
}

func (f *Fake) CreateImportJob(ctx context.Context, req omeka.ImportJobRequest) (*omeka.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	label := req.ImporterLabel
	if imp, ok := f.Importers[req.ImporterID]; ok {
		label = imp.Label
	}
	if err := f.call("CreateImportJob", label); err != nil {
		return nil, err
	}
	if _, ok := f.Importers[req.ImporterID]; !ok {
		return nil, notFound("importer", req.ImporterID)
	}
	imp := &Import{
		ID:         f.id(),
		ImporterID: req.ImporterID,
		Comment:    fmt.Sprintf("Site: %s,Importer: %s", req.SiteLabel, label),
		FileName:   req.FileName,
		OwnerID:    req.OwnerID,
	}
	f.Imports[imp.ID] = imp
	return &omeka.ImportJob{ID: imp.ID, Status: "ready"}, nil
}

func (f *Fake) ExecuteTask(ctx context.Context, taskID int) (*omeka.TaskExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ExecuteTask", taskID); err != nil {
		return nil, err
	}
	task, ok := f.Imports[taskID]
	if !ok {
		return nil, notFound("bulk import", taskID)
	}
	jobID := f.id()
	next := &Import{ID: f.id(), ImporterID: task.ImporterID, Comment: task.Comment, FileName: task.FileName, OwnerID: task.OwnerID, JobID: &jobID}
	f.Imports[next.ID] = next
	return &omeka.TaskExecution{TaskID: taskID, NewTaskID: next.ID, JobID: jobID}, nil
}

func (f *Fake) DeleteImport(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteImport", id); err != nil {
		return err
	}
	if _, ok := f.Imports[id]; !ok {
		return notFound("bulk import", id)
	}
	delete(f.Imports, id)
	return nil
}

func (f *Fake) SearchItemSets(ctx context.Context, property, value string) ([]omeka.ItemSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SearchItemSets", value); err != nil {
		return nil, err
	}
	var out []omeka.ItemSet
	for id := 0; id <= f.nextID; id++ {
		set, ok := f.ItemSets[id]
		if !ok {
			continue
		}
		values, _ := set.Raw[property].([]any)
		for _, v := range values {
			if m, ok := v.(map[string]any); ok && m["@value"] == value {
				out = append(out, omeka.ItemSet{ID: set.ID, Title: set.Title, Raw: domain.DeepCopy(set.Raw)})
				break
			}
		}
	}
	return out, nil
}

func (f *Fake) UpdateItemSet(ctx context.Context, id int, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UpdateItemSet", id); err != nil {
		return err
	}
	set, ok := f.ItemSets[id]
	if !ok {
		return notFound("item set", id)
	}
	for k, v := range patch {
		set.Raw[k] = v
	}
	return nil
}

func (f *Fake) Count(ctx context.Context, resource string, siteID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Count", resource); err != nil {
		return 0, err
	}
	return f.Counts[resource], nil
}

// As records the credentials and keeps serving from the same state
func (f *Fake) As(creds omeka.Credentials) omeka.Repository {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AsUsed = append(f.AsUsed, creds)
	return f
}

var _ omeka.Repository = (*Fake)(nil)
