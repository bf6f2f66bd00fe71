package omeka

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{
		BaseURL:     server.URL + "/api",
		Credentials: Credentials{KeyIdentity: "id", KeyCredential: "secret"},
		PreloadDir:  "/var/www/html/omeka-s/files/preload",
		HTTPClient:  server.Client(),
	})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	data, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return body
}

func TestCreateSite(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sites" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("key_identity") != "id" || r.URL.Query().Get("key_credential") != "secret" {
			t.Errorf("credentials missing from query: %s", r.URL.RawQuery)
		}
		got = decodeBody(t, r)
		w.Write([]byte(`{"o:id": 101, "o:title": "Channel A", "o:slug": "channel-a"}`))
	})

	site, err := client.CreateSite(context.Background(), "Channel A", "channel-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if site.ID != 101 {
		t.Errorf("site.ID = %d, want 101", site.ID)
	}
	if got["o:theme"] != "freedom" || got["o:is_public"] != true || got["o:assign_new_items"] != false {
		t.Errorf("unexpected body: %v", got)
	}
	owner := got["o:owner"].(map[string]any)
	if owner["o:id"] != float64(1) {
		t.Errorf("owner = %v", owner)
	}
}

func TestRemoteErrorCarriesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":{"o:slug":"taken"}}`, http.StatusInternalServerError)
	})

	_, err := client.CreateSite(context.Background(), "B", "channel-b")
	if !apperrors.IsRemote(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
	var appErr *apperrors.AppError
	if !asAppError(err, &appErr) || appErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %v", appErr)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks credentials: %v", err)
	}
}

func asAppError(err error, target **apperrors.AppError) bool {
	e, ok := err.(*apperrors.AppError)
	if ok {
		*target = e
	}
	return ok
}

func TestFindSiteBySlug_Absent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slug") != "missing" {
			t.Errorf("slug query = %q", r.URL.Query().Get("slug"))
		}
		w.Write([]byte(`[]`))
	})

	site, err := client.FindSiteBySlug(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if site != nil {
		t.Errorf("expected nil site, got %+v", site)
	}
}

func TestAddUserToSite(t *testing.T) {
	var put map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"o:id": 5, "o:slug": "a", "o:site_permission": [{"o:user": {"o:id": 1}, "o:role": "admin"}]}`))
		case http.MethodPut:
			put = decodeBody(t, r)
			w.Write([]byte(`{}`))
		}
	})

	if err := client.AddUserToSite(context.Background(), 5, 42, "editor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	perms := put["o:site_permission"].([]any)
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(perms))
	}
	added := perms[1].(map[string]any)
	if added["o:role"] != "editor" {
		t.Errorf("role = %v", added["o:role"])
	}
}

func TestAddUserToSite_AlreadyMember(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			t.Error("no update expected for an existing member")
		}
		w.Write([]byte(`{"o:id": 5, "o:site_permission": [{"o:user": {"o:id": 42}, "o:role": "editor"}]}`))
	})

	if err := client.AddUserToSite(context.Background(), 5, 42, "editor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateImportJob(t *testing.T) {
	var posted map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/bulk_importers/7":
			w.Write([]byte(`{"o:id": 7, "o:label": "Items", "o:config": {
				"reader": {"url": "", "xsl_params": {"SiteId": ""}},
				"processor": {"action": "create"}}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/bulk_imports":
			posted = decodeBody(t, r)
			w.Write([]byte(`{"o:id": 900, "o:status": "ready", "o:job": null}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	job, err := client.CreateImportJob(context.Background(), ImportJobRequest{
		ImporterID: 7, FileName: "channel-a.xml", FileSize: 2048,
		SiteLabel: "Channel A", SiteID: 101, OwnerID: 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != 900 || job.Job != nil {
		t.Errorf("job = %+v", job)
	}

	if posted["o-bulk:comment"] != "Site: Channel A,Importer: Items" {
		t.Errorf("comment = %v", posted["o-bulk:comment"])
	}
	params := posted["o:params"].(map[string]any)
	reader := params["reader"].(map[string]any)
	if reader["filename"] != "/var/www/html/omeka-s/files/preload/channel-a.xml" {
		t.Errorf("filename = %v", reader["filename"])
	}
	if reader["xsl_params"].(map[string]any)["SiteId"] != "101" {
		t.Errorf("SiteId = %v", reader["xsl_params"])
	}
	file := reader["file"].(map[string]any)
	if file["type"] != "text/xml" || file["size"] != float64(2048) {
		t.Errorf("file = %v", file)
	}
	if params["processor"].(map[string]any)["o:owner"] != float64(42) {
		t.Errorf("processor = %v", params["processor"])
	}
}

func TestExecuteTask(t *testing.T) {
	var posted map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"o:id": 900, "o:importer": {"o:id": 7}, "o-bulk:comment": "Site: A,Importer: Items", "o:params": {"reader": {}}}`))
		case http.MethodPost:
			posted = decodeBody(t, r)
			w.Write([]byte(`{"o:id": 901, "o:job": {"o:id": 55}}`))
		}
	})

	exec, err := client.ExecuteTask(context.Background(), 900)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.JobID != 55 || exec.NewTaskID != 901 || exec.TaskID != 900 {
		t.Errorf("exec = %+v", exec)
	}
	if posted["o:importer"] != float64(7) {
		t.Errorf("importer = %v", posted["o:importer"])
	}
	if posted["o:params"].(map[string]any)["as_task"] != "0" {
		t.Errorf("params = %v", posted["o:params"])
	}
}

func TestExecuteTask_NoJob(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"o:id": 900, "o:importer": 7}`))
			return
		}
		w.Write([]byte(`{"o:id": 901, "o:job": null}`))
	})

	if _, err := client.ExecuteTask(context.Background(), 900); !apperrors.IsRemote(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestCount_UsesTotalHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/items" || r.URL.Query().Get("site_id") != "101" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("Omeka-S-Total-Results", "37")
		w.Write([]byte(`[{"o:id": 1}]`))
	})

	n, err := client.Count(context.Background(), "items", 101)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 37 {
		t.Errorf("Count = %d, want 37", n)
	}
}

func TestSearchItemSets(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("property[0][property]") != "dcterms:audience" || q.Get("property[0][text]") != "site:101" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"o:id": 3, "o:title": "Videos", "dcterms:audience": [{"@value": "site:101"}, {"@value": "teachers"}]}]`))
	})

	sets, err := client.SearchItemSets(context.Background(), "dcterms:audience", "site:101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sets) != 1 || sets[0].ID != 3 {
		t.Fatalf("sets = %+v", sets)
	}
	kept, removed := sets[0].ValuesWithout("dcterms:audience", "site:101")
	if !removed || len(kept) != 1 {
		t.Errorf("ValuesWithout = %v, %v", kept, removed)
	}
}

func TestListUsers_Paginates(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "1" {
			users := make([]User, perPage)
			for i := range users {
				users[i] = User{ID: i + 1, Role: "editor"}
			}
			json.NewEncoder(w).Encode(users)
			return
		}
		w.Write([]byte(`[{"o:id": 500, "o:role": "researcher"}]`))
	})

	users, err := client.ListUsers(context.Background(), "editor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 pages, got %d", calls)
	}
	if len(users) != perPage {
		t.Errorf("expected %d editors, got %d", perPage, len(users))
	}
}

func TestAs_SwitchesCredentials(t *testing.T) {
	var seen []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("key_identity"))
		w.Write([]byte(`{}`))
	})

	admin := client.As(Credentials{KeyIdentity: "admin", KeyCredential: "root"})
	if err := admin.DeleteImport(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := client.DeleteImport(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "admin" || seen[1] != "id" {
		t.Errorf("identities = %v", seen)
	}
	if client.As(Credentials{}) != Repository(client) {
		t.Error("empty credentials should keep the client")
	}
}

func TestCreateImporter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["o:label"] != "Items" {
			t.Errorf("label = %v", body["o:label"])
		}
		w.Write([]byte(`{"o:id": 12, "o:label": "Items"}`))
	})

	def := domain.NewImporterDefinition(map[string]any{"o:label": "Items"})
	imp, err := client.CreateImporter(context.Background(), def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imp.ID != 12 {
		t.Errorf("ID = %d", imp.ID)
	}
}

func TestThrottle_SpacesCalls(t *testing.T) {
	th := NewThrottle(20 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("three calls took %v, want at least 40ms", elapsed)
	}
}

func TestThrottle_CancelledContext(t *testing.T) {
	th := NewThrottle(time.Hour)
	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := th.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}
