package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/bitfantasy/atelier/internal/plm/service"
	"github.com/bitfantasy/atelier/internal/plm/testutil"
)

func TestUserDirectoryOverHTTP(t *testing.T) {
	db := testutil.SetupTestDB(t)
	router := testutil.SetupRouter()

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, nil)
	userHandler := NewUserHandler(services.User)

	api := testutil.AuthGroup(router, "/api/v1")
	api.GET("/users", userHandler.List)
	api.GET("/users/:id", userHandler.Get)

	testutil.SeedTestUser(t, db, "user-001", "张三", "zhangsan@test.com")
	testutil.SeedTestUser(t, db, "user-002", "李四", "lisi@test.com")
	token := testutil.DefaultTestToken()

	// 列表
	w := testutil.DoRequest(router, "GET", "/api/v1/users", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 2 {
		t.Errorf("Expected 2 users, got %d", len(items))
	}

	// 单个读取
	w = testutil.DoRequest(router, "GET", "/api/v1/users/user-001", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["name"] != "张三" {
		t.Errorf("Expected name 张三, got %v", data["name"])
	}

	// 不存在的用户
	w = testutil.DoRequest(router, "GET", "/api/v1/users/missing", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	if resp["error_code"] != "NOT_FOUND" {
		t.Errorf("Expected error_code NOT_FOUND, got %v", resp["error_code"])
	}
}
