package omeka

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
)

const (
	perPage            = 100
	totalResultsHeader = "Omeka-S-Total-Results"
)

// Options configures a Client
type Options struct {
	BaseURL      string // API root, e.g. https://omeka.example/api
	Credentials  Credentials
	PreloadDir   string
	SiteTheme    string
	SiteOwnerID  int
	RequestDelay time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client implements Repository over the Omeka S REST API
type Client struct {
	opts       Options
	creds      Credentials
	httpClient *http.Client
	throttle   Throttle
	logger     *slog.Logger
}

// NewClient creates a new Omeka S client
func NewClient(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.SiteTheme == "" {
		opts.SiteTheme = "freedom"
	}
	if opts.SiteOwnerID == 0 {
		opts.SiteOwnerID = 1
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		opts:       opts,
		creds:      opts.Credentials,
		httpClient: httpClient,
		throttle:   NewThrottle(opts.RequestDelay),
		logger:     logger.With("component", "omeka"),
	}
}

// As returns a client sharing the connection and throttle but sending creds.
// Empty credentials leave the current ones in place.
func (c *Client) As(creds Credentials) Repository {
	if creds.Empty() {
		return c
	}
	clone := *c
	clone.creds = creds
	return &clone
}

// CreateSite creates a public site with the configured theme and owner
func (c *Client) CreateSite(ctx context.Context, title, slug string) (*Site, error) {
	body := map[string]any{
		"o:title":            title,
		"o:slug":             slug,
		"o:theme":            c.opts.SiteTheme,
		"o:is_public":        true,
		"o:assign_new_items": false,
		"o:owner":            map[string]any{"o:id": c.opts.SiteOwnerID},
	}
	var site Site
	if _, err := c.do(ctx, http.MethodPost, "/sites", nil, body, &site); err != nil {
		return nil, err
	}
	c.logger.Debug("site created", "site_id", site.ID, "slug", slug)
	return &site, nil
}

// FindSiteBySlug looks a site up by slug
func (c *Client) FindSiteBySlug(ctx context.Context, slug string) (*Site, error) {
	var sites []Site
	if _, err := c.do(ctx, http.MethodGet, "/sites", url.Values{"slug": {slug}}, nil, &sites); err != nil {
		return nil, err
	}
	for i := range sites {
		if sites[i].Slug == slug {
			return &sites[i], nil
		}
	}
	return nil, nil
}

// GetSite retrieves a site
func (c *Client) GetSite(ctx context.Context, id int) (*Site, error) {
	var site Site
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sites/%d", id), nil, nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// UpdateSite merges patch into the site representation and writes it back
func (c *Client) UpdateSite(ctx context.Context, id int, patch map[string]any) error {
	return c.merge(ctx, fmt.Sprintf("/sites/%d", id), patch)
}

// CreateUser creates an active user
func (c *Client) CreateUser(ctx context.Context, name, email, role string) (*User, error) {
	body := map[string]any{
		"o:name":      name,
		"o:email":     email,
		"o:role":      role,
		"o:is_active": true,
	}
	var user User
	if _, err := c.do(ctx, http.MethodPost, "/users", nil, body, &user); err != nil {
		return nil, err
	}
	c.logger.Debug("user created", "user_id", user.ID, "email", email)
	return &user, nil
}

// FindUserByEmail looks a user up by email, ignoring case
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var users []User
	if _, err := c.do(ctx, http.MethodGet, "/users", url.Values{"email": {email}}, nil, &users); err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// ListUsers returns every user holding role. An empty role lists all users.
func (c *Client) ListUsers(ctx context.Context, role string) ([]User, error) {
	query := url.Values{}
	if role != "" {
		query.Set("role", role)
	}
	all, err := listAll[User](ctx, c, "/users", query)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return all, nil
	}
	var users []User
	for _, u := range all {
		if u.Role == role {
			users = append(users, u)
		}
	}
	return users, nil
}

// UpdateUser merges patch into the user representation and writes it back
func (c *Client) UpdateUser(ctx context.Context, id int, patch map[string]any) error {
	return c.merge(ctx, fmt.Sprintf("/users/%d", id), patch)
}

// AddUserToSite grants role on the site unless the user already holds a permission
func (c *Client) AddUserToSite(ctx context.Context, siteID, userID int, role string) error {
	sitePath := fmt.Sprintf("/sites/%d", siteID)
	site, err := c.getRaw(ctx, sitePath)
	if err != nil {
		return err
	}

	permissions, _ := site["o:site_permission"].([]any)
	for _, p := range permissions {
		perm, _ := p.(map[string]any)
		user, _ := perm["o:user"].(map[string]any)
		if intValue(user["o:id"]) == userID {
			c.logger.Debug("user already has site permission", "site_id", siteID, "user_id", userID)
			return nil
		}
	}

	site["o:site_permission"] = append(permissions, map[string]any{
		"o:user": map[string]any{"o:id": userID},
		"o:role": role,
	})
	_, err = c.do(ctx, http.MethodPut, sitePath, nil, site, nil)
	return err
}

// FindImporterByLabel returns the importer with label, or nil
func (c *Client) FindImporterByLabel(ctx context.Context, label string) (*Importer, error) {
	importers, err := listAll[Importer](ctx, c, "/bulk_importers", url.Values{"label": {label}})
	if err != nil {
		return nil, err
	}
	for i := range importers {
		if importers[i].Label == label {
			return &importers[i], nil
		}
	}
	return nil, nil
}

// FindMappingByLabel returns the mapping with label, or nil
func (c *Client) FindMappingByLabel(ctx context.Context, label string) (*Mapping, error) {
	mappings, err := listAll[Mapping](ctx, c, "/bulk_mappings", url.Values{"label": {label}})
	if err != nil {
		return nil, err
	}
	for i := range mappings {
		if mappings[i].Label == label {
			return &mappings[i], nil
		}
	}
	return nil, nil
}

// CreateImporter stores an importer definition
func (c *Client) CreateImporter(ctx context.Context, def domain.ImporterDefinition) (*Importer, error) {
	var importer Importer
	if _, err := c.do(ctx, http.MethodPost, "/bulk_importers", nil, def.Body, &importer); err != nil {
		return nil, err
	}
	return &importer, nil
}

// CreateImportJob creates a bulk import of a preloaded export. The reader and
// processor settings start from the importer's own configuration.
func (c *Client) CreateImportJob(ctx context.Context, req ImportJobRequest) (*ImportJob, error) {
	importer, err := c.getRaw(ctx, fmt.Sprintf("/bulk_importers/%d", req.ImporterID))
	if err != nil {
		return nil, err
	}
	label := req.ImporterLabel
	if l, ok := importer["o:label"].(string); ok && l != "" {
		label = l
	}

	cfg, _ := importer["o:config"].(map[string]any)
	reader, _ := cfg["reader"].(map[string]any)
	processor, _ := cfg["processor"].(map[string]any)
	reader = domain.DeepCopy(reader)
	processor = domain.DeepCopy(processor)

	reader["filename"] = path.Join(c.opts.PreloadDir, req.FileName)
	reader["file"] = map[string]any{
		"name":      req.FileName,
		"full_path": req.FileName,
		"type":      "text/xml",
		"error":     0,
		"size":      req.FileSize,
	}
	if xsl, ok := reader["xsl_params"].(map[string]any); ok && req.SiteID != 0 {
		if _, has := xsl["SiteId"]; has {
			xsl["SiteId"] = strconv.Itoa(req.SiteID)
		}
	}
	if req.OwnerID != 0 {
		processor["o:owner"] = req.OwnerID
	}

	body := map[string]any{
		"@type":          "o-bulk:Import",
		"o:job":          nil,
		"o-bulk:comment": fmt.Sprintf("Site: %s,Importer: %s", req.SiteLabel, label),
		"o:status":       "ready",
		"o:undo_job":     nil,
		"o:importer":     req.ImporterID,
		"o:params": map[string]any{
			"reader":    reader,
			"mapping":   nil,
			"processor": processor,
		},
	}

	var job ImportJob
	if _, err := c.do(ctx, http.MethodPost, "/bulk_imports", nil, body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ExecuteTask re-submits a deferred import with task mode off so the
// repository dispatches it as a job.
func (c *Client) ExecuteTask(ctx context.Context, taskID int) (*TaskExecution, error) {
	task, err := c.getRaw(ctx, fmt.Sprintf("/bulk_imports/%d", taskID))
	if err != nil {
		return nil, err
	}

	params, _ := task["o:params"].(map[string]any)
	params = domain.DeepCopy(params)
	params["as_task"] = "0"

	body := map[string]any{
		"@type":          "o-bulk:Import",
		"o:job":          nil,
		"o-bulk:comment": task["o-bulk:comment"],
		"o:status":       "ready",
		"o:undo_job":     nil,
		"o:importer":     importerID(task["o:importer"]),
		"o:params":       params,
	}

	var job ImportJob
	if _, err := c.do(ctx, http.MethodPost, "/bulk_imports", nil, body, &job); err != nil {
		return nil, err
	}
	if job.Job == nil || job.Job.ID == 0 {
		return nil, apperrors.NewRemoteError(fmt.Sprintf("task %d: repository did not dispatch a job", taskID), 0, nil)
	}
	return &TaskExecution{TaskID: taskID, NewTaskID: job.ID, JobID: job.Job.ID}, nil
}

// DeleteImport removes an import record
func (c *Client) DeleteImport(ctx context.Context, id int) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/bulk_imports/%d", id), nil, nil, nil)
	return err
}

// SearchItemSets returns the item sets whose property equals value
func (c *Client) SearchItemSets(ctx context.Context, property, value string) ([]ItemSet, error) {
	query := url.Values{
		"property[0][property]": {property},
		"property[0][type]":     {"eq"},
		"property[0][text]":     {value},
	}
	return listAll[ItemSet](ctx, c, "/item_sets", query)
}

// UpdateItemSet merges patch into the item set representation and writes it back
func (c *Client) UpdateItemSet(ctx context.Context, id int, patch map[string]any) error {
	return c.merge(ctx, fmt.Sprintf("/item_sets/%d", id), patch)
}

// Count returns how many resources of a kind belong to a site
func (c *Client) Count(ctx context.Context, resource string, siteID int) (int, error) {
	query := url.Values{
		"site_id":  {strconv.Itoa(siteID)},
		"per_page": {"1"},
	}
	var page []json.RawMessage
	header, err := c.do(ctx, http.MethodGet, "/"+resource, query, nil, &page)
	if err != nil {
		return 0, err
	}
	if v := header.Get(totalResultsHeader); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, apperrors.NewRemoteError(fmt.Sprintf("invalid %s header %q", totalResultsHeader, v), 0, err)
		}
		return n, nil
	}

	// Without the header every page has to be walked.
	all, err := listAll[json.RawMessage](ctx, c, "/"+resource, url.Values{"site_id": {strconv.Itoa(siteID)}})
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (c *Client) merge(ctx context.Context, resourcePath string, patch map[string]any) error {
	current, err := c.getRaw(ctx, resourcePath)
	if err != nil {
		return err
	}
	for k, v := range patch {
		current[k] = v
	}
	_, err = c.do(ctx, http.MethodPut, resourcePath, nil, current, nil)
	return err
}

func (c *Client) getRaw(ctx context.Context, resourcePath string) (map[string]any, error) {
	var raw map[string]any
	if _, err := c.do(ctx, http.MethodGet, resourcePath, nil, nil, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// listAll walks every page of a collection
func listAll[T any](ctx context.Context, c *Client, resourcePath string, query url.Values) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))

		var items []T
		header, err := c.do(ctx, http.MethodGet, resourcePath, q, nil, &items)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		if len(items) < perPage {
			break
		}
		if total, err := strconv.Atoi(header.Get(totalResultsHeader)); err == nil && len(all) >= total {
			break
		}
	}
	return all, nil
}

// do sends one throttled request. Credentials travel as query parameters
// and never appear in returned errors.
func (c *Client) do(ctx context.Context, method, resourcePath string, query url.Values, body, out any) (http.Header, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if !c.creds.Empty() {
		q.Set("key_identity", c.creds.KeyIdentity)
		q.Set("key_credential", c.creds.KeyCredential)
	}
	target := c.opts.BaseURL + resourcePath
	if encoded := q.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.NewRemoteError(fmt.Sprintf("cannot encode %s %s body", method, resourcePath), 0, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, apperrors.NewRemoteError(fmt.Sprintf("cannot build %s %s", method, resourcePath), 0, stripURL(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewRemoteError(fmt.Sprintf("%s %s failed", method, resourcePath), 0, stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			c.throttle.Defer(time.Now().Add(time.Duration(secs) * time.Second))
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug("request failed", "method", method, "path", resourcePath, "status", resp.StatusCode)
		return resp.Header, apperrors.NewRemoteError(
			fmt.Sprintf("%s %s returned %d: %s", method, resourcePath, resp.StatusCode, strings.TrimSpace(string(snippet))),
			resp.StatusCode, nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.Header, apperrors.NewRemoteError(fmt.Sprintf("cannot decode %s %s response", method, resourcePath), resp.StatusCode, err)
		}
	}
	return resp.Header, nil
}

func stripURL(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

func importerID(v any) any {
	if m, ok := v.(map[string]any); ok {
		return intValue(m["o:id"])
	}
	return intValue(v)
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
