package routes_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nestpost/nestpost/config"
	"github.com/nestpost/nestpost/models"
	"github.com/nestpost/nestpost/routes"
	"github.com/nestpost/nestpost/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("GIN_MODE", "test")
	// The limiter is keyed by client IP and every test shares 127.0.0.1.
	os.Setenv("RATE_LIMIT_PER_MINUTE", "10000")
	if err := utils.InitLogger(config.Get()); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func setupServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Post{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	srv := httptest.NewServer(routes.SetupRouter(db))
	t.Cleanup(srv.Close)
	return srv, db
}

func doJSON(t *testing.T, method, url, token string, payload interface{}) (int, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, b
}

func register(t *testing.T, base, username, password string) int {
	t.Helper()
	status, _ := doJSON(t, http.MethodPost, base+"/api/v1/auth/register", "", map[string]string{
		"username": username, "password": password,
	})
	return status
}

func login(t *testing.T, base, username, password string) string {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, base+"/api/v1/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, status, body)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		t.Fatalf("login response %q: %v", body, err)
	}
	return out.AccessToken
}

func createPost(t *testing.T, base, token, title, body string, parentID *uint) uint {
	t.Helper()
	payload := map[string]interface{}{"title": title, "body": body}
	if parentID != nil {
		payload["parent_id"] = *parentID
	}
	status, respBody := doJSON(t, http.MethodPost, base+"/api/v1/post/", token, payload)
	if status != http.StatusCreated {
		t.Fatalf("create post: status %d: %s", status, respBody)
	}
	var out struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil || out.ID == 0 {
		t.Fatalf("create post response %q: %v", respBody, err)
	}
	return out.ID
}

func getThread(t *testing.T, base string, id uint) (int, []map[string]interface{}) {
	t.Helper()
	status, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/post/%d", base, id), "", nil)
	if status != http.StatusOK {
		return status, nil
	}
	var chain []map[string]interface{}
	if err := json.Unmarshal(body, &chain); err != nil {
		t.Fatalf("thread response %q: %v", body, err)
	}
	return status, chain
}

func TestEndToEndScenario(t *testing.T) {
	srv, _ := setupServer(t)
	base := srv.URL

	if status := register(t, base, "alice", "pw"); status != http.StatusCreated {
		t.Fatalf("register: status %d", status)
	}
	token := login(t, base, "alice", "pw")

	id := createPost(t, base, token, "t", "b", nil)

	status, chain := getThread(t, base, id)
	if status != http.StatusOK || len(chain) != 1 {
		t.Fatalf("thread after create: status %d, %d posts, want 200 with 1", status, len(chain))
	}
	if chain[0]["title"] != "t" || chain[0]["username"] != "alice" {
		t.Errorf("thread entry = %v", chain[0])
	}

	status, body := doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/v1/post/%d", base, id), token,
		map[string]string{"title": "t2", "body": "b2"})
	if status != http.StatusNoContent {
		t.Fatalf("update: status %d: %s", status, body)
	}

	status, chain = getThread(t, base, id)
	if status != http.StatusOK || len(chain) != 1 || chain[0]["title"] != "t2" {
		t.Fatalf("thread after update: status %d, chain %v", status, chain)
	}

	status, body = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/post/%d", base, id), token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete: status %d: %s", status, body)
	}

	if status, _ := getThread(t, base, id); status != http.StatusNotFound {
		t.Fatalf("thread after delete: status %d, want 404", status)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	srv, db := setupServer(t)
	base := srv.URL

	if status := register(t, base, "alice", "pw"); status != http.StatusCreated {
		t.Fatalf("first register: status %d", status)
	}
	if status := register(t, base, "alice", "other"); status != http.StatusBadRequest {
		t.Fatalf("duplicate register: status %d, want 400", status)
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "alice").Count(&count)
	if count != 1 {
		t.Errorf("duplicate register left %d rows, want 1", count)
	}
}

func TestLoginFailuresIndistinguishable(t *testing.T) {
	srv, _ := setupServer(t)
	base := srv.URL

	register(t, base, "alice", "pw")

	wrongStatus, wrongBody := doJSON(t, http.MethodPost, base+"/api/v1/auth/login", "",
		map[string]string{"username": "alice", "password": "bad"})
	unknownStatus, unknownBody := doJSON(t, http.MethodPost, base+"/api/v1/auth/login", "",
		map[string]string{"username": "nobody", "password": "pw"})

	if wrongStatus != http.StatusUnauthorized || unknownStatus != http.StatusUnauthorized {
		t.Fatalf("statuses %d/%d, want 401/401", wrongStatus, unknownStatus)
	}
	if string(wrongBody) != string(unknownBody) {
		t.Errorf("failure bodies differ: %s vs %s", wrongBody, unknownBody)
	}
}

func TestNonOwnerMutationsLookLikeMissing(t *testing.T) {
	srv, db := setupServer(t)
	base := srv.URL

	register(t, base, "alice", "pw")
	register(t, base, "bob", "pw")
	aliceToken := login(t, base, "alice", "pw")
	bobToken := login(t, base, "bob", "pw")

	id := createPost(t, base, aliceToken, "alice's post", "body", nil)

	status, _ := doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/v1/post/%d", base, id), bobToken,
		map[string]string{"title": "stolen", "body": "stolen"})
	if status != http.StatusNotFound {
		t.Fatalf("non-owner update: status %d, want 404", status)
	}

	status, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/post/%d", base, id), bobToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("non-owner delete: status %d, want 404", status)
	}

	var post models.Post
	if err := db.First(&post, id).Error; err != nil {
		t.Fatalf("post vanished: %v", err)
	}
	if post.Title != "alice's post" {
		t.Errorf("post mutated by non-owner: %q", post.Title)
	}
}

func TestThreadAndOneLevelCascade(t *testing.T) {
	srv, _ := setupServer(t)
	base := srv.URL

	register(t, base, "alice", "pw")
	register(t, base, "bob", "pw")
	aliceToken := login(t, base, "alice", "pw")
	bobToken := login(t, base, "bob", "pw")

	a := createPost(t, base, aliceToken, "A", "root", nil)
	b := createPost(t, base, bobToken, "B", "reply", &a)
	c := createPost(t, base, aliceToken, "C", "nested reply", &b)

	status, chain := getThread(t, base, c)
	if status != http.StatusOK || len(chain) != 3 {
		t.Fatalf("thread(C): status %d, %d posts, want 200 with 3", status, len(chain))
	}

	status, chain = getThread(t, base, a)
	if status != http.StatusOK || len(chain) != 1 {
		t.Fatalf("thread(A): status %d, %d posts, want 200 with 1", status, len(chain))
	}

	// Deleting A takes B with it but leaves the grandchild C orphaned.
	status, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/post/%d", base, a), aliceToken, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete A: status %d", status)
	}

	if status, _ := getThread(t, base, b); status != http.StatusNotFound {
		t.Errorf("thread(B) after cascade: status %d, want 404", status)
	}
	status, chain = getThread(t, base, c)
	if status != http.StatusOK || len(chain) != 1 {
		t.Errorf("orphaned C: status %d, chain %v, want 200 with just C", status, chain)
	}
}

func TestTopLevelListingNewestFirst(t *testing.T) {
	srv, _ := setupServer(t)
	base := srv.URL

	register(t, base, "alice", "pw")
	token := login(t, base, "alice", "pw")

	first := createPost(t, base, token, "first", "body", nil)
	time.Sleep(5 * time.Millisecond)
	second := createPost(t, base, token, "second", "body", nil)
	createPost(t, base, token, "a reply", "body", &first)

	status, body := doJSON(t, http.MethodGet, base+"/api/v1/post/", "", nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d: %s", status, body)
	}
	var posts []map[string]interface{}
	if err := json.Unmarshal(body, &posts); err != nil {
		t.Fatalf("list response %q: %v", body, err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d top-level posts, want 2", len(posts))
	}
	if uint(posts[0]["id"].(float64)) != second || uint(posts[1]["id"].(float64)) != first {
		t.Errorf("order = %v, %v; want newest first", posts[0]["id"], posts[1]["id"])
	}
}

func TestFilterWindow(t *testing.T) {
	srv, db := setupServer(t)
	base := srv.URL

	register(t, base, "alice", "pw")
	var user models.User
	if err := db.Where("username = ?", "alice").First(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}

	ids := make(map[int]uint)
	for n := 1; n <= 5; n++ {
		post := models.Post{
			Title:    fmt.Sprintf("day %d", n),
			Body:     "body",
			Created:  time.Date(2021, time.March, n, 12, 0, 0, 0, time.UTC),
			AuthorID: user.ID,
		}
		if err := db.Create(&post).Error; err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids[n] = post.ID
	}

	status, body := doJSON(t, http.MethodGet, base+"/api/v1/post/filter?lastdate=2021-03-02&limit=2", "", nil)
	if status != http.StatusOK {
		t.Fatalf("filter after: status %d: %s", status, body)
	}
	var posts []models.Post
	if err := json.Unmarshal(body, &posts); err != nil {
		t.Fatalf("filter response %q: %v", body, err)
	}
	if len(posts) != 2 || posts[0].ID != ids[3] || posts[1].ID != ids[4] {
		t.Errorf("after 03-02 limit 2 = %+v, want days 3,4 ascending", posts)
	}

	status, body = doJSON(t, http.MethodGet, base+"/api/v1/post/filter?firstdate=2021-03-04", "", nil)
	if status != http.StatusOK {
		t.Fatalf("filter before: status %d: %s", status, body)
	}
	if err := json.Unmarshal(body, &posts); err != nil {
		t.Fatalf("filter response %q: %v", body, err)
	}
	if len(posts) != 3 || posts[0].ID != ids[3] || posts[1].ID != ids[2] || posts[2].ID != ids[1] {
		t.Errorf("before 03-04 = %+v, want days 3,2,1 descending", posts)
	}

	// firstdate wins when both boundaries are supplied.
	status, body = doJSON(t, http.MethodGet, base+"/api/v1/post/filter?lastdate=2021-03-01&firstdate=2021-03-03&limit=10", "", nil)
	if status != http.StatusOK {
		t.Fatalf("filter both: status %d: %s", status, body)
	}
	if err := json.Unmarshal(body, &posts); err != nil {
		t.Fatalf("filter response %q: %v", body, err)
	}
	if len(posts) != 2 || posts[0].ID != ids[2] || posts[1].ID != ids[1] {
		t.Errorf("both boundaries = %+v, want the before branch (days 2,1)", posts)
	}
}

func TestMutationsRequireAuth(t *testing.T) {
	srv, _ := setupServer(t)
	base := srv.URL

	status, _ := doJSON(t, http.MethodPost, base+"/api/v1/post/", "", map[string]string{"title": "t", "body": "b"})
	if status != http.StatusUnauthorized {
		t.Errorf("unauthenticated create: status %d, want 401", status)
	}

	status, _ = doJSON(t, http.MethodPost, base+"/api/v1/post/", "not-a-token", map[string]string{"title": "t", "body": "b"})
	if status != http.StatusUnauthorized {
		t.Errorf("garbage token create: status %d, want 401", status)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	srv, _ := setupServer(t)
	base := srv.URL

	register(t, base, "alice", "pw")
	token := login(t, base, "alice", "pw")

	status, body := doJSON(t, http.MethodGet, base+"/api/v1/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status %d: %s", status, body)
	}

	status, _ = doJSON(t, http.MethodPost, base+"/api/v1/auth/logout", token, nil)
	if status != http.StatusOK {
		t.Fatalf("logout: status %d", status)
	}

	status, _ = doJSON(t, http.MethodGet, base+"/api/v1/auth/me", token, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("me after logout: status %d, want 401", status)
	}
}
