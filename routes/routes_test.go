package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	controller "widgethub/controllers"
	"widgethub/middleware"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
	"widgethub/utils/testdb"
)

// Monday 10:00 UTC, inside the fallback business hours.
var testNow = time.Date(2024, time.June, 17, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
	svc Services
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	db := testdb.New(t)
	clock := services.ClockFunc(func() time.Time { return testNow })
	access := services.NewAccessControl(db)
	svc := Services{
		Auth:         services.NewAuthService(db, utils.NewTokenIssuer("test-secret", time.Hour, 24*time.Hour), clock),
		Access:       access,
		Directory:    services.NewDirectory(db),
		Availability: services.NewAvailabilityEvaluator(db),
		Intake:       services.NewIntake(db, clock, nil),
		Chat:         services.NewChatService(db, clock, nil),
		Leads:        services.NewLeadService(db),
		Projects:     services.NewProjectService(db, nil, access),
		ABTests:      services.NewABTestService(db, services.NewRandSource(1), services.HashGate{}),
		Clock:        clock,
	}
	if opts.WidgetRateLimit == 0 {
		opts.WidgetRateLimit = 1000
	}
	if opts.CORS.AllowedOrigins == nil {
		opts.CORS = middleware.DefaultCORSConfig()
	}
	app := fiber.New(fiber.Config{ErrorHandler: controller.ErrorHandler})
	SetupRoutes(app, svc, opts)
	return &testEnv{app: app, db: db, svc: svc}
}

type reply struct {
	status int
	body   map[string]interface{}
	header http.Header
}

func (r reply) data() map[string]interface{} {
	d, _ := r.body["data"].(map[string]interface{})
	return d
}

func (r reply) list() []interface{} {
	d, _ := r.body["data"].([]interface{})
	return d
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) reply {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := reply{status: resp.StatusCode, header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

// login registers (when needed) and signs in, returning the access token.
func (e *testEnv) login(t *testing.T, email string, role models.Role) (string, *models.User) {
	t.Helper()
	ctx := context.Background()
	user, err := e.svc.Auth.Register(ctx, services.RegisterInput{Email: email, Password: "password123", Role: role})
	require.NoError(t, err)
	tokens, err := e.svc.Auth.IssueTokens(ctx, user, services.ClientMeta{})
	require.NoError(t, err)
	return tokens.Access, user
}

func TestHealthAndNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})

	r := env.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "running", r.body["status"])

	r = env.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, false, r.body["success"])
}

func TestWidgetFlow(t *testing.T) {
	env := newTestEnv(t, Options{})
	project := testdb.Project(t, env.db, "UTC")
	base := fmt.Sprintf("/api/widget/%%s/%d", project.ID)
	at := func(action string) string { return fmt.Sprintf(base, action) }

	r := env.do(t, http.MethodGet, at("channels"), nil, "")
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, true, r.data()["is_online"])
	assert.Nil(t, r.data()["next_available"])
	assert.Empty(t, r.data()["channels"])

	r = env.do(t, http.MethodPost, at("create_lead"), map[string]interface{}{
		"contact": "visitor@example.com", "message": "hi", "utm_source": "ads",
	}, "")
	require.Equal(t, http.StatusCreated, r.status)
	assert.Equal(t, "ads", r.data()["utm_source"])
	assert.Equal(t, "desktop", r.data()["device_type"])

	r = env.do(t, http.MethodPost, at("create_callback"), map[string]interface{}{"contact": "+15550100"}, "")
	require.Equal(t, http.StatusCreated, r.status)
	assert.Equal(t, "+15550100", r.data()["phone"])

	r = env.do(t, http.MethodGet, at("channels"), nil, "")
	require.Equal(t, http.StatusOK, r.status)
	channels, _ := r.data()["channels"].([]interface{})
	require.Len(t, channels, 2)
	assert.Equal(t, "form", channels[0].(map[string]interface{})["type"])
	assert.Equal(t, "call", channels[1].(map[string]interface{})["type"])

	r = env.do(t, http.MethodPost, at("start_chat"), map[string]interface{}{"client_id": "cid", "language": "ru"}, "")
	require.Equal(t, http.StatusCreated, r.status)
	session := r.data()["session"].(map[string]interface{})
	welcome := r.data()["welcome_message"].(map[string]interface{})
	assert.Equal(t, "system", welcome["message_type"])
	sessionID := uint(session["id"].(float64))

	r = env.do(t, http.MethodPost, at("send_message"), map[string]interface{}{"content": "hello"}, "")
	assert.Equal(t, http.StatusBadRequest, r.status)

	r = env.do(t, http.MethodPost, at("send_message"), map[string]interface{}{
		"session_id": sessionID, "content": "hello", "message_type": "staff",
	}, "")
	assert.Equal(t, http.StatusBadRequest, r.status)

	r = env.do(t, http.MethodPost, at("send_message"), map[string]interface{}{
		"session_id": sessionID, "content": "hello", "message_type": "user",
	}, "")
	require.Equal(t, http.StatusCreated, r.status)
	assert.Equal(t, "visitor", r.data()["message_type"])

	r = env.do(t, http.MethodGet, fmt.Sprintf("%s?session_id=%d", at("messages"), sessionID), nil, "")
	require.Equal(t, http.StatusOK, r.status)
	msgs := r.list()
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["message_type"])
	assert.Equal(t, "hello", msgs[1].(map[string]interface{})["content"])

	r = env.do(t, http.MethodGet, at("messages"), nil, "")
	assert.Equal(t, http.StatusBadRequest, r.status)
}

func TestWidgetErrors(t *testing.T) {
	env := newTestEnv(t, Options{})
	project := testdb.Project(t, env.db, "UTC")

	r := env.do(t, http.MethodGet, "/api/widget/channels/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, false, r.body["success"])

	r = env.do(t, http.MethodGet, "/api/widget/channels/999", nil, "")
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, "not_found", r.body["code"])

	r = env.do(t, http.MethodPost, fmt.Sprintf("/api/widget/create_lead/%d", project.ID),
		map[string]interface{}{"channel": 12345, "contact": "x"}, "")
	assert.Equal(t, http.StatusNotFound, r.status)

	var n int64
	require.NoError(t, env.db.Model(&models.Lead{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestWidgetMobileOrdering(t *testing.T) {
	env := newTestEnv(t, Options{})
	project := testdb.Project(t, env.db, "UTC")
	ctx := context.Background()
	_, err := env.svc.Directory.CreateChannel(ctx, project.ID, services.ChannelInput{Type: models.ChannelForm, Label: "Form", Priority: 1, IsActive: true})
	require.NoError(t, err)
	top, err := env.svc.Directory.CreateChannel(ctx, project.ID, services.ChannelInput{Type: models.ChannelCall, Label: "Call", Priority: 9, ShowInTop: true, IsActive: true})
	require.NoError(t, err)

	r := env.do(t, http.MethodGet, fmt.Sprintf("/api/widget/channels/%d?device=mobile", project.ID), nil, "")
	require.Equal(t, http.StatusOK, r.status)
	channels := r.data()["channels"].([]interface{})
	require.Len(t, channels, 2)
	assert.EqualValues(t, top.ID, channels[0].(map[string]interface{})["id"])
}

func TestWidgetRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{WidgetRateLimit: 2})
	project := testdb.Project(t, env.db, "UTC")
	path := fmt.Sprintf("/api/widget/channels/%d", project.ID)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, nil, "").status)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, nil, "").status)
	r := env.do(t, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusTooManyRequests, r.status)
	assert.Equal(t, false, r.body["success"])
}

func TestWidgetCORSAllowsAnyOrigin(t *testing.T) {
	env := newTestEnv(t, Options{})
	project := testdb.Project(t, env.db, "UTC")

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/widget/channels/%d", project.ID), nil)
	req.Header.Set("Origin", "https://customer.example")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, Options{})

	r := env.do(t, http.MethodPost, "/auth/register", map[string]interface{}{
		"email": "owner@example.com", "password": "password123",
	}, "")
	require.Equal(t, http.StatusCreated, r.status)
	assert.Equal(t, "admin", r.body["role"])
	assert.NotEmpty(t, r.body["access_token"])

	r = env.do(t, http.MethodPost, "/auth/client/register", map[string]interface{}{
		"email": "second@example.com", "password": "password123",
	}, "")
	require.Equal(t, http.StatusCreated, r.status)
	assert.Equal(t, "viewer", r.body["role"])

	r = env.do(t, http.MethodPost, "/auth/register", map[string]interface{}{"email": "bad", "password": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, r.status)

	r = env.do(t, http.MethodPost, "/auth/admin/login", map[string]interface{}{
		"email": "second@example.com", "password": "password123",
	}, "")
	assert.Equal(t, http.StatusForbidden, r.status)

	r = env.do(t, http.MethodPost, "/auth/client/login", map[string]interface{}{
		"email": "SECOND@example.com", "password": "password123",
	}, "")
	require.Equal(t, http.StatusOK, r.status)
	access := r.body["access_token"].(string)
	refresh := r.body["refresh_token"].(string)

	r = env.do(t, http.MethodGet, "/auth/me", nil, access)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "second@example.com", r.body["email"])

	r = env.do(t, http.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, r.status)

	r = env.do(t, http.MethodPost, "/auth/refresh", map[string]interface{}{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, r.status)
	rotated := r.body["refresh_token"].(string)

	r = env.do(t, http.MethodPost, "/auth/refresh", map[string]interface{}{"refresh_token": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, r.status)

	r = env.do(t, http.MethodPut, "/auth/plan", map[string]interface{}{"plan": "pro"}, access)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "pro", r.body["plan"])

	r = env.do(t, http.MethodPost, "/auth/logout", map[string]interface{}{"refresh_token": rotated}, access)
	assert.Equal(t, http.StatusOK, r.status)

	r = env.do(t, http.MethodDelete, "/auth/profile", nil, access)
	assert.Equal(t, http.StatusNoContent, r.status)

	r = env.do(t, http.MethodGet, "/auth/me", nil, access)
	assert.Equal(t, http.StatusForbidden, r.status)
}

func TestDashboardAccessControl(t *testing.T) {
	env := newTestEnv(t, Options{})
	adminToken, _ := env.login(t, "admin@example.com", models.RoleAdmin)
	marketingToken, marketer := env.login(t, "m@example.com", models.RoleMarketing)
	viewerToken, viewer := env.login(t, "v@example.com", models.RoleViewer)

	r := env.do(t, http.MethodPost, "/api/v1/projects", map[string]interface{}{"name": "Shop", "timezone": "Europe/Kiev"}, adminToken)
	require.Equal(t, http.StatusCreated, r.status)
	projectID := uint(r.data()["id"].(float64))
	projectPath := fmt.Sprintf("/api/v1/projects/%d", projectID)

	r = env.do(t, http.MethodPost, "/api/v1/projects", map[string]interface{}{"name": "Nope"}, marketingToken)
	assert.Equal(t, http.StatusForbidden, r.status)

	// non-members see nothing
	r = env.do(t, http.MethodGet, projectPath+"/channels", nil, marketingToken)
	assert.Equal(t, http.StatusForbidden, r.status)

	for _, uid := range []uint{marketer.ID, viewer.ID} {
		r = env.do(t, http.MethodPost, projectPath+"/members", map[string]interface{}{"user_id": uid}, adminToken)
		require.Equal(t, http.StatusCreated, r.status)
	}

	channel := map[string]interface{}{"type": "messenger", "label": "Telegram", "priority": 3}
	r = env.do(t, http.MethodPost, projectPath+"/channels", channel, marketingToken)
	require.Equal(t, http.StatusCreated, r.status)
	assert.Equal(t, true, r.data()["is_active"])

	r = env.do(t, http.MethodPost, projectPath+"/channels", channel, viewerToken)
	assert.Equal(t, http.StatusForbidden, r.status)

	r = env.do(t, http.MethodPost, projectPath+"/channels", map[string]interface{}{"type": "fax", "label": "x"}, marketingToken)
	assert.Equal(t, http.StatusBadRequest, r.status)

	r = env.do(t, http.MethodGet, projectPath+"/channels", nil, viewerToken)
	require.Equal(t, http.StatusOK, r.status)
	assert.Len(t, r.list(), 1)

	r = env.do(t, http.MethodPut, projectPath, map[string]interface{}{"name": "Renamed"}, marketingToken)
	assert.Equal(t, http.StatusForbidden, r.status)

	r = env.do(t, http.MethodPut, projectPath+"/schedules/monday", map[string]interface{}{
		"start_time": "08:00", "end_time": "20:00",
	}, marketingToken)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, true, r.data()["is_working_day"])

	r = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/channels/widget-config?project=%d", projectID), nil, viewerToken)
	require.Equal(t, http.StatusOK, r.status)
	// 10:00 UTC is 13:00 in Kyiv, inside the Monday row
	assert.Equal(t, true, r.data()["is_online"])

	r = env.do(t, http.MethodGet, "/api/v1/users", nil, marketingToken)
	assert.Equal(t, http.StatusForbidden, r.status)
	r = env.do(t, http.MethodGet, "/api/v1/users", nil, adminToken)
	require.Equal(t, http.StatusOK, r.status)
}

func TestDashboardLeadsAndChat(t *testing.T) {
	env := newTestEnv(t, Options{})
	project := testdb.Project(t, env.db, "UTC")
	token, user := env.login(t, "m@example.com", models.RoleMarketing)
	require.NoError(t, env.svc.Projects.AddMember(context.Background(), project.ID, user.ID))
	ctx := context.Background()

	lead, err := env.svc.Intake.SubmitLead(ctx, project.ID, services.LeadSubmission{Contact: "a@b.co"})
	require.NoError(t, err)
	started, err := env.svc.Intake.StartChat(ctx, project.ID, services.ChatStart{})
	require.NoError(t, err)
	_, err = env.svc.Intake.SendChatMessage(ctx, project.ID, services.ChatReply{SessionID: started.Session.ID, Content: utils.Pointer("help")})
	require.NoError(t, err)

	base := fmt.Sprintf("/api/v1/projects/%d", project.ID)

	r := env.do(t, http.MethodGet, base+"/leads?processed=false", nil, token)
	require.Equal(t, http.StatusOK, r.status)

	r = env.do(t, http.MethodPatch, fmt.Sprintf("%s/leads/%d", base, lead.ID), map[string]interface{}{"processed": true}, token)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, true, r.data()["processed"])

	r = env.do(t, http.MethodPatch, fmt.Sprintf("%s/leads/%d", base, lead.ID), map[string]interface{}{}, token)
	assert.Equal(t, http.StatusBadRequest, r.status)

	sessionPath := fmt.Sprintf("%s/chat-sessions/%d", base, started.Session.ID)
	r = env.do(t, http.MethodPost, sessionPath+"/messages", map[string]interface{}{"content": "on it"}, token)
	require.Equal(t, http.StatusCreated, r.status)
	assert.Equal(t, "staff", r.data()["message_type"])

	r = env.do(t, http.MethodGet, sessionPath+"/messages", nil, token)
	require.Equal(t, http.StatusOK, r.status)
	assert.Len(t, r.list(), 3)

	r = env.do(t, http.MethodPost, sessionPath+"/read", nil, token)
	require.Equal(t, http.StatusOK, r.status)
}

func TestABTestAssignmentEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	project := testdb.Project(t, env.db, "UTC")
	adminToken, _ := env.login(t, "admin@example.com", models.RoleAdmin)
	viewerToken, viewer := env.login(t, "v@example.com", models.RoleViewer)
	outsiderToken, _ := env.login(t, "o@example.com", models.RoleViewer)
	ctx := context.Background()
	require.NoError(t, env.svc.Projects.AddMember(ctx, project.ID, viewer.ID))

	first, err := env.svc.Directory.CreateChannel(ctx, project.ID, services.ChannelInput{Type: models.ChannelForm, Label: "Form", Priority: 1, IsActive: true})
	require.NoError(t, err)
	second, err := env.svc.Directory.CreateChannel(ctx, project.ID, services.ChannelInput{Type: models.ChannelChat, Label: "Chat", Priority: 2, IsActive: true})
	require.NoError(t, err)

	base := fmt.Sprintf("/api/v1/projects/%d/ab-tests", project.ID)
	r := env.do(t, http.MethodPost, base, map[string]interface{}{"name": "order", "traffic_percentage": 100}, adminToken)
	require.Equal(t, http.StatusCreated, r.status)
	testID := uint(r.data()["id"].(float64))

	assignPath := fmt.Sprintf("/api/v1/ab-tests/%d/assign", testID)
	r = env.do(t, http.MethodPost, assignPath, nil, viewerToken)
	assert.Equal(t, http.StatusConflict, r.status)

	r = env.do(t, http.MethodPost, fmt.Sprintf("%s/%d/variants", base, testID), map[string]interface{}{
		"name": "chat first", "weight": 100, "channel_order": []uint{second.ID},
	}, adminToken)
	require.Equal(t, http.StatusCreated, r.status)

	r = env.do(t, http.MethodPost, assignPath, nil, viewerToken)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, false, r.data()["excluded"])
	channels := r.data()["channels"].([]interface{})
	require.Len(t, channels, 2)
	assert.EqualValues(t, second.ID, channels[0].(map[string]interface{})["id"])
	assert.EqualValues(t, first.ID, channels[1].(map[string]interface{})["id"])
	variantID := r.data()["variant"].(map[string]interface{})["id"]

	r = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/ab-tests/%d/assignment", testID), nil, viewerToken)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, variantID, r.data()["variant"].(map[string]interface{})["id"])

	r = env.do(t, http.MethodPost, assignPath, nil, outsiderToken)
	assert.Equal(t, http.StatusForbidden, r.status)

	r = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/ab-tests/%d/assignment?user_id=%d", testID, 99), nil, viewerToken)
	assert.Equal(t, http.StatusForbidden, r.status)

	r = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/ab-tests/%d/assignment?user_id=%d", testID, viewer.ID), nil, adminToken)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, variantID, r.data()["variant"].(map[string]interface{})["id"])
}
