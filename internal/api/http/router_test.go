package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/rumi-monitor/internal/api/http/handlers"
	"github.com/spec-kit/rumi-monitor/internal/auth"
	"github.com/spec-kit/rumi-monitor/internal/config"
	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/internal/observability"
	"github.com/spec-kit/rumi-monitor/internal/repository"
	"github.com/spec-kit/rumi-monitor/internal/service"
	"github.com/spec-kit/rumi-monitor/internal/trigger"
)

type stubHelpdesk struct{}

func (stubHelpdesk) Probe(context.Context) (domain.User, error) {
	return domain.User{ID: 1}, nil
}

func (stubHelpdesk) ListViews(context.Context) ([]domain.View, error) {
	return []domain.View{{ID: 1, Title: "Support"}}, nil
}

func (stubHelpdesk) ViewTicketIDs(context.Context, int64) ([]int64, error) {
	return nil, nil
}

func (stubHelpdesk) GetTicket(_ context.Context, id int64) (domain.Ticket, error) {
	return domain.Ticket{ID: id, Status: domain.TicketStatusOpen}, nil
}

func (stubHelpdesk) TicketComments(_ context.Context, id int64) ([]domain.Comment, error) {
	return []domain.Comment{{ID: id, AuthorID: 9, Body: "Waiting for your reply"}}, nil
}

func (stubHelpdesk) UpdateTicket(_ context.Context, id int64, _ map[string]any) (domain.Ticket, error) {
	return domain.Ticket{ID: id, Status: domain.TicketStatusPending}, nil
}

func (stubHelpdesk) GetUser(_ context.Context, id int64) (domain.User, error) {
	return domain.User{ID: id, Role: "agent"}, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	hash, err := auth.HashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	settings := repository.NewMemorySettingsRepository()
	history := repository.NewTicketHistoryRepository()
	api := stubHelpdesk{}

	processor := service.NewTicketProcessor(service.ProcessorDependencies{
		API:      api,
		Analyzer: trigger.NewAnalyzer(api, nil, 9, logger),
		History:  history,
		Metrics:  metrics,
	})
	monitor := service.NewMonitor(service.MonitorDependencies{
		API:       api,
		Processor: processor,
		History:   history,
		Settings:  settings,
		Metrics:   metrics,
		Config: service.MonitorSettings{
			Interval:    15 * time.Second,
			MinInterval: 10 * time.Second,
			MaxInterval: 60 * time.Second,
		},
	})
	t.Cleanup(func() {
		if monitor.Status().State != service.StateStopped {
			monitor.Stop()
		}
	})

	tokens := auth.NewTokenManager("test-secret", 5)
	authService := service.NewAuthService(config.AuthConfig{OperatorUsername: "operator", OperatorPasswordHash: hash}, tokens)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("rumi-monitor", "test", nil, api),
		Auth:           handlers.NewAuthHandler(authService),
		Monitor:        handlers.NewMonitorHandler(monitor, zap.NewAtomicLevel(), logger),
		History:        handlers.NewHistoryHandler(monitor),
		Preferences:    handlers.NewPreferencesHandler(settings),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App) string {
	t.Helper()
	status, body := do(t, app, http.MethodPost, "/auth/login", "", `{"username":"operator","password":"s3cret"}`)
	if status != http.StatusOK {
		t.Fatalf("login status = %d body = %v", status, body)
	}
	return body["data"].(map[string]any)["token"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthIsPublic(t *testing.T) {
	app := newTestApp(t)
	if status, _ := do(t, app, http.MethodGet, "/health/live", "", ""); status != http.StatusOK {
		t.Fatalf("live = %d", status)
	}
	status, body := do(t, app, http.MethodGet, "/health/ready", "", "")
	if status != http.StatusOK {
		t.Fatalf("ready = %d %v", status, body)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	app := newTestApp(t)
	status, body := do(t, app, http.MethodGet, "/monitor/status", "", "")
	if status != http.StatusUnauthorized || errorCode(body) != "UNAUTHORIZED" {
		t.Fatalf("status = %d body = %v", status, body)
	}
	status, _ = do(t, app, http.MethodPost, "/auth/login", "", `{"username":"operator","password":"nope"}`)
	if status != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", status)
	}
}

func TestMonitorControls(t *testing.T) {
	app := newTestApp(t)
	token := login(t, app)

	status, body := do(t, app, http.MethodPost, "/monitor/start", token, "")
	if status != http.StatusBadRequest || errorCode(body) != "VALIDATION_FAILED" {
		t.Fatalf("start without views = %d %v", status, body)
	}

	status, body = do(t, app, http.MethodPut, "/monitor/interval", token, `{"seconds":5}`)
	if status != http.StatusBadRequest {
		t.Fatalf("interval 5 = %d %v", status, body)
	}

	status, _ = do(t, app, http.MethodPut, "/monitor/views", token, `{"view_ids":[1]}`)
	if status != http.StatusOK {
		t.Fatalf("select views = %d", status)
	}
	status, body = do(t, app, http.MethodPost, "/monitor/start", token, "")
	if status != http.StatusAccepted {
		t.Fatalf("start = %d %v", status, body)
	}
	status, body = do(t, app, http.MethodGet, "/monitor/status", token, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if st := body["data"].(map[string]any)["monitor"].(map[string]any)["state"]; st != "monitoring" {
		t.Fatalf("state = %v", st)
	}

	status, body = do(t, app, http.MethodPut, "/monitor/dry-run", token, `{"enabled":true}`)
	if status != http.StatusOK {
		t.Fatalf("dry-run = %d %v", status, body)
	}
	status, body = do(t, app, http.MethodPost, "/monitor/test", token, `{"input":"41, 42"}`)
	if status != http.StatusOK {
		t.Fatalf("test = %d %v", status, body)
	}
	if meta := body["meta"].(map[string]any); meta["processed"] != float64(2) {
		t.Fatalf("meta = %v", meta)
	}

	status, body = do(t, app, http.MethodGet, "/history", token, "")
	if status != http.StatusOK || body["meta"].(map[string]any)["total"] != float64(2) {
		t.Fatalf("history = %d %v", status, body)
	}

	status, _ = do(t, app, http.MethodPost, "/monitor/stop", token, "")
	if status != http.StatusOK {
		t.Fatalf("stop = %d", status)
	}
}

func TestPreferences(t *testing.T) {
	app := newTestApp(t)
	token := login(t, app)

	status, _ := do(t, app, http.MethodPut, "/preferences", token, `{"field_visibility":"some"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("invalid visibility = %d", status)
	}
	status, body := do(t, app, http.MethodPut, "/preferences", token, `{"field_visibility":"minimal","views_hidden":true}`)
	if status != http.StatusOK {
		t.Fatalf("update = %d %v", status, body)
	}
	_, body = do(t, app, http.MethodGet, "/preferences", token, "")
	data := body["data"].(map[string]any)
	if data["field_visibility"] != "minimal" || data["views_hidden"] != true {
		t.Fatalf("preferences = %v", data)
	}
}
