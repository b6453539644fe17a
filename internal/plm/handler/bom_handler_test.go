package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/bitfantasy/atelier/internal/plm/service"
	"github.com/bitfantasy/atelier/internal/plm/testutil"
)

func setupBOMHandlerTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	router := testutil.SetupRouter()

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, nil)
	bomHandler := NewBOMHandler(services.Consumption, services.Readiness, services.Style)

	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/revisions/:id/bom-lines", bomHandler.CreateLine)
	api.GET("/revisions/:id/bom-lines", bomHandler.ListLines)
	api.PUT("/bom-lines/:id/stage", bomHandler.SetStage)
	api.POST("/bom-lines/:id/lock", bomHandler.Lock)
	api.GET("/bom-lines/:id/history", bomHandler.History)
	api.GET("/styles/:id/bom-readiness", bomHandler.Readiness)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

func TestBOMLineStageOverHTTP(t *testing.T) {
	env := setupBOMHandlerTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedTestUser(t, env.DB, "test-user-001", "Test User", "tester@test.com")
	_, rev := testutil.SeedStyle(t, env.DB, "style-h001", "ST-H001")

	// 创建BOM行
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/revisions/"+rev.ID+"/bom-lines",
		map[string]interface{}{
			"material_name": "主面料",
			"category":      "fabric",
			"unit_price":    "12.5",
		}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	lineID := data["id"].(string)
	if data["maturity"] != "unknown" {
		t.Errorf("Expected maturity unknown, got %v", data["maturity"])
	}

	// 写入 sample 阶段
	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/bom-lines/"+lineID+"/stage",
		map[string]interface{}{"stage": "sample", "value": "1.25"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	data = resp["data"].(map[string]interface{})
	if data["maturity"] != "sample" {
		t.Errorf("Expected maturity sample, got %v", data["maturity"])
	}

	// 锁定（覆盖值）
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/bom-lines/"+lineID+"/lock",
		map[string]interface{}{"value": "1.3"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 锁定后再写：409 + 稳定错误码
	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/bom-lines/"+lineID+"/stage",
		map[string]interface{}{"stage": "confirmed", "value": "1.4"}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	if resp["error_code"] != "ALREADY_LOCKED" {
		t.Errorf("Expected error_code ALREADY_LOCKED, got %v", resp["error_code"])
	}

	// 历史完整可追溯
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/bom-lines/"+lineID+"/history", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 2 {
		t.Errorf("Expected 2 history entries, got %d", len(items))
	}
}

func TestBOMReadinessOverHTTP(t *testing.T) {
	env := setupBOMHandlerTest(t)
	token := testutil.DefaultTestToken()
	_, rev := testutil.SeedStyle(t, env.DB, "style-h002", "ST-H002")

	for i := 0; i < 2; i++ {
		w := testutil.DoRequest(env.Router, "POST", "/api/v1/revisions/"+rev.ID+"/bom-lines",
			map[string]interface{}{"material_name": "物料", "category": "trim"}, token)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
	}

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/styles/style-h002/bom-readiness", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["ratio"].(float64) != 0.0 {
		t.Errorf("Expected ratio 0, got %v", data["ratio"])
	}
	if data["ready"].(bool) {
		t.Errorf("Expected not ready")
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupBOMHandlerTest(t)
	w := testutil.DoRequest(env.Router, "GET", "/api/v1/styles/any/bom-readiness", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
}
