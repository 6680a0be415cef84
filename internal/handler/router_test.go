package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"kb-admin-go/internal/config"
	"kb-admin-go/internal/metrics"
	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository/memory"
	"kb-admin-go/internal/service"
	"kb-admin-go/pkg/lock"
	"kb-admin-go/pkg/storage"
	"kb-admin-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router  *gin.Engine
	uploads service.UploadService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	locker := lock.NewLocalLocker()
	objects := storage.NewMemoryStore()
	jwtManager := token.NewJWTManager("handler-test", 1)

	uploads := service.NewUploadService(store.Departments(), store.Files(), store.Categories(), store.Activities(), memory.NewTaskRepository(time.Hour),
		locker, objects, nil, nil, service.UploadOptions{ProgressStep: 10, Failure: service.NeverFail()})
	admin := service.NewAdminService(store.Departments(), store.Users(), store.Categories(), store.Files(), store.Activities(), store.Settings(), locker, uploads)
	users := service.NewUserService(store.Users(), store.Departments(), store.Activities(), jwtManager)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = uploads.Shutdown(ctx)
	})

	require.NoError(t, service.Seed(context.Background(), config.SeedConfig{
		Enabled:     true,
		AdminUser:   "superadmin",
		AdminPass:   "superadmin123",
		AdminEmail:  "admin@example.com",
		Departments: []string{"人事部"},
	}, store.Users(), store.Departments(), admin))

	router := NewRouter(Services{
		Users:      users,
		Admin:      admin,
		Duplicates: service.NewDuplicateService(store.Files()),
		Uploads:    uploads,
		Files:      service.NewFileService(store.Files(), store.Categories(), store.Activities(), locker, objects, nil),
		Categories: service.NewCategoryService(store.Categories(), store.Files(), store.Activities(), locker, nil),
		Activities: service.NewActivityService(store.Activities(), store.Departments()),
	}, jwtManager, RouterOptions{
		LoginRatePerMinute: 100,
		Metrics:            metrics.New(),
		Upload:             UploadLimits{MaxFiles: 3, MaxFileSize: 4 << 10, MaxRequestSize: 64 << 10},
	})

	return &testServer{router: router, uploads: uploads}
}

func (s *testServer) do(t *testing.T, method, path, tokenString string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tokenString != "" {
		req.Header.Set("Authorization", "Bearer "+tokenString)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var result struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return result.AccessToken
}

// departmentAdmin 创建人事部管理员并返回其 token。
func (s *testServer) departmentAdmin(t *testing.T, rootToken string) string {
	t.Helper()
	_, env := s.do(t, http.MethodGet, "/api/admin/departments", rootToken, nil)
	var depts []model.Department
	require.NoError(t, json.Unmarshal(env.Data, &depts))
	require.Len(t, depts, 1)

	w, env := s.do(t, http.MethodPost, "/api/admin/users", rootToken, gin.H{
		"username": "hr_admin", "email": "hr@example.com", "name": "人事管理員",
		"password": "hr-pass", "role": model.RoleAdmin, "departmentId": depts[0].ID,
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	return s.login(t, "hr_admin", "hr-pass")
}

func (s *testServer) waitTask(t *testing.T, tokenString, taskID string) model.UploadTaskSnapshot {
	t.Helper()
	var snap model.UploadTaskSnapshot
	require.Eventually(t, func() bool {
		w, env := s.do(t, http.MethodGet, "/api/upload/tasks/"+taskID, tokenString, nil)
		if w.Code != http.StatusOK {
			return false
		}
		snap = model.UploadTaskSnapshot{}
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			return false
		}
		return snap.UploadTask != nil && snap.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestLogin_Envelope(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "superadmin", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, env.Success)
	require.Equal(t, "帳號或密碼錯誤", env.Message)

	w, env = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "superadmin"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, env.Success)
	require.NotEmpty(t, env.Message)

	rootToken := s.login(t, "superadmin", "superadmin123")
	w, env = s.do(t, http.MethodGet, "/api/auth/profile", rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRoutes_RequireRole(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodGet, "/api/files", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, env.Success)

	rootToken := s.login(t, "superadmin", "superadmin123")
	hrToken := s.departmentAdmin(t, rootToken)

	w, env = s.do(t, http.MethodGet, "/api/admin/departments", hrToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, env.Message, "權限不足")

	// 超级管理员没有所属部门，无法访问部门范围的数据
	w, env = s.do(t, http.MethodGet, "/api/files", rootToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, model.ErrNoDepartment.Message, env.Message)

	w, env = s.do(t, http.MethodGet, "/api/auth/permission?role=super_admin", hrToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var perm service.PermissionResult
	require.NoError(t, json.Unmarshal(env.Data, &perm))
	require.False(t, perm.HasPermission)
}

func TestUploadFlow(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "superadmin", "superadmin123")
	hrToken := s.departmentAdmin(t, rootToken)

	w, env := s.do(t, http.MethodPost, "/api/categories", hrToken, gin.H{"name": "規章制度", "color": "red"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = s.do(t, http.MethodPost, "/api/upload/batch", hrToken, gin.H{
		"files":      []gin.H{{"name": "員工手冊.pdf", "size": 2048, "type": "application/pdf"}},
		"categories": gin.H{"員工手冊.pdf": "規章制度"},
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var created struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.TaskID)

	snap := s.waitTask(t, hrToken, created.TaskID)
	require.Equal(t, model.TaskCompleted, snap.Status)
	require.Equal(t, 100, snap.Progress)

	w, env = s.do(t, http.MethodPost, "/api/upload/check-duplicates", hrToken, gin.H{
		"files": []gin.H{{"name": "員工手冊.pdf", "size": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var reports []model.DuplicateReport
	require.NoError(t, json.Unmarshal(env.Data, &reports))
	require.Len(t, reports, 1)
	require.True(t, reports[0].IsDuplicate)

	w, env = s.do(t, http.MethodGet, "/api/files?category="+"規章制度", hrToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var files []model.File
	require.NoError(t, json.Unmarshal(env.Data, &files))
	require.Len(t, files, 1)

	var cats []model.CategoryWithCount
	_, env = s.do(t, http.MethodGet, "/api/categories", hrToken, nil)
	require.NoError(t, json.Unmarshal(env.Data, &cats))
	var ruleID uint
	for _, c := range cats {
		if c.Name == "規章制度" {
			ruleID = c.ID
		}
	}
	require.NotZero(t, ruleID)

	w, env = s.do(t, http.MethodDelete, "/api/categories/"+itoa(ruleID), hrToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, env.Message, "1 個檔案")

	w, env = s.do(t, http.MethodGet, "/api/upload/tasks/task_missing", hrToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.False(t, env.Success)
}

func TestBatchUpload_Multipart(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "superadmin", "superadmin123")
	hrToken := s.departmentAdmin(t, rootToken)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello knowledge base"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("categories", `{"notes.txt":"未分類"}`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/batch", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+hrToken)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var created struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	snap := s.waitTask(t, hrToken, created.TaskID)
	require.Equal(t, model.TaskCompleted, snap.Status)
	require.Equal(t, int64(len("hello knowledge base")), snap.Files[0].Size)
}

// postMultipart 以 multipart 提交文件，每个文件的内容由 sizes 决定。
func (s *testServer) postMultipart(t *testing.T, tokenString string, sizes ...int) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, size := range sizes {
		part, err := mw.CreateFormFile("files", fmt.Sprintf("file_%d.txt", i))
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte("x"), size))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/batch", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestBatchUpload_MultipartLimits(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "superadmin", "superadmin123")
	hrToken := s.departmentAdmin(t, rootToken)

	// 请求体超过 64KB
	w, env := s.postMultipart(t, hrToken, 80<<10)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.False(t, env.Success)
	require.Contains(t, env.Message, "64 KB")

	// 单个文件超过 4KB
	w, env = s.postMultipart(t, hrToken, 8<<10)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, env.Message, "超過大小上限")

	// 文件数超过 3 个
	w, env = s.postMultipart(t, hrToken, 10, 10, 10, 10)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, env.Message, "單次最多上傳 3 個檔案")

	w, env = s.postMultipart(t, hrToken, 10, 10, 10)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var created struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	snap := s.waitTask(t, hrToken, created.TaskID)
	require.Equal(t, model.TaskCompleted, snap.Status)
	require.Equal(t, 3, snap.TotalFiles)
}

func TestWatchTask_StreamsUntilTerminal(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "superadmin", "superadmin123")
	hrToken := s.departmentAdmin(t, rootToken)

	_, env := s.do(t, http.MethodPost, "/api/upload/batch", hrToken, gin.H{
		"files": []gin.H{{"name": "a.pdf", "size": 1}, {"name": "b.pdf", "size": 1}},
	})
	var created struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	srv := httptest.NewServer(s.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/upload/tasks/" + created.TaskID + "/watch?token=" + hrToken
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var last model.UploadTaskSnapshot
	for {
		var msg struct {
			Success bool                     `json:"success"`
			Data    model.UploadTaskSnapshot `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		require.True(t, msg.Success)
		last = msg.Data
	}
	require.NotNil(t, last.UploadTask)
	require.Equal(t, model.TaskCompleted, last.Status)
	require.Equal(t, 2, last.SuccessFiles)
}

func TestExportSystemActivities(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "superadmin", "superadmin123")

	w, _ := s.do(t, http.MethodGet, "/api/admin/activities/export", rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	require.NotZero(t, w.Body.Len())

	w, env := s.do(t, http.MethodGet, "/api/admin/activities?departmentId=abc", rootToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, env.Success)
}

func TestDeleteDepartment_ReportsBlockers(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "superadmin", "superadmin123")
	s.departmentAdmin(t, rootToken)

	_, env := s.do(t, http.MethodGet, "/api/admin/departments", rootToken, nil)
	var depts []model.Department
	require.NoError(t, json.Unmarshal(env.Data, &depts))

	w, env := s.do(t, http.MethodDelete, "/api/admin/departments/"+itoa(depts[0].ID), rootToken, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, env.Message, "1 位使用者")
}

// userID 通过用户列表接口查找用户 ID。
func (s *testServer) userID(t *testing.T, rootToken, username string) uint {
	t.Helper()
	w, env := s.do(t, http.MethodGet, "/api/admin/users?size=100", rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var list service.UserListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	for _, u := range list.Content {
		if u.Username == username {
			return u.UserID
		}
	}
	t.Fatalf("user %s not found", username)
	return 0
}

func TestStaleToken_DeletedUserIsRejected(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "superadmin", "superadmin123")
	hrToken := s.departmentAdmin(t, rootToken)
	id := s.userID(t, rootToken, "hr_admin")

	w, env := s.do(t, http.MethodDelete, "/api/admin/users/"+itoa(id), rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = s.do(t, http.MethodGet, "/api/files", hrToken, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, env.Success)
	require.Equal(t, "使用者不存在", env.Message)

	w, _ = s.do(t, http.MethodPost, "/api/upload/batch", hrToken, gin.H{
		"files": []gin.H{{"name": "手冊.pdf", "size": 10, "type": "application/pdf"}},
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStaleToken_MovedUserSeesNewDepartment(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "superadmin", "superadmin123")
	hrToken := s.departmentAdmin(t, rootToken)
	id := s.userID(t, rootToken, "hr_admin")

	w, env := s.do(t, http.MethodPost, "/api/admin/departments", rootToken, gin.H{"name": "財務部", "color": "green"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var finance model.Department
	require.NoError(t, json.Unmarshal(env.Data, &finance))

	w, env = s.do(t, http.MethodPut, "/api/admin/users/"+itoa(id), rootToken, gin.H{
		"username": "hr_admin", "email": "hr@example.com", "name": "人事管理員",
		"role": model.RoleAdmin, "departmentId": finance.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	// 调动前签发的 token 只能看到新部门的数据
	w, env = s.do(t, http.MethodGet, "/api/categories", hrToken, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var cats []model.CategoryWithCount
	require.NoError(t, json.Unmarshal(env.Data, &cats))
	require.NotEmpty(t, cats)
	for _, c := range cats {
		require.Equal(t, finance.ID, c.DepartmentID)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
