package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/commlink/pkg/commlink/apperror"
	"github.com/mikepea/commlink/pkg/commlink/auth"
)

func setupEngine(t *testing.T, routes *Table) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORS(), Recovery(nil), auth.Middleware(1, nil))
	d := New(routes, nil)
	r.Any("/api/*path", d.Handle)
	r.NoRoute(d.Handle)
	return r
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, Envelope) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestUnmatchedRouteReturns404Envelope(t *testing.T) {
	r := setupEngine(t, NewTable())

	for _, path := range []string{"/api/nothing", "/elsewhere", "/api/links/1/2/3"} {
		w, env := do(r, "GET", path, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
		if env.Success || env.Error != "Route not found" {
			t.Errorf("%s: unexpected envelope %+v", path, env)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("%s: expected CORS header, got %q", path, got)
		}
	}
}

func TestOptionsShortCircuits(t *testing.T) {
	called := false
	routes := NewTable()
	routes.MustHandle("OPTIONS /api/links", func(*Request) (*Result, error) {
		called = true
		return Message("should not run"), nil
	})
	r := setupEngine(t, routes)

	for _, path := range []string{"/api/links", "/api/unknown", "/"} {
		w, _ := do(r, "OPTIONS", path, "")
		if w.Code != http.StatusNoContent {
			t.Errorf("%s: expected 204, got %d", path, w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("%s: expected empty body, got %q", path, w.Body.String())
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("%s: expected CORS header, got %q", path, got)
		}
	}
	if called {
		t.Error("OPTIONS handler should not run")
	}
}

func TestParamsIdentityAndBody(t *testing.T) {
	routes := NewTable()
	routes.MustHandle("POST /api/links/:id", func(req *Request) (*Result, error) {
		var body struct {
			Name string `json:"name"`
		}
		if err := req.Bind(&body); err != nil {
			return nil, err
		}
		return Created(gin.H{
			"id":   req.Params.Get("id"),
			"user": req.Identity.UserID,
			"name": body.Name,
			"q":    req.Query.Get("q"),
		}), nil
	})
	r := setupEngine(t, routes)

	w, env := do(r, "POST", "/api/links/42?q=x", `{"name":"Acme"}`)
	if w.Code != http.StatusCreated || !env.Success {
		t.Fatalf("Expected 201 success, got %d %s", w.Code, w.Body.String())
	}
	data := env.Data.(map[string]any)
	if data["id"] != "42" || data["user"] != float64(1) || data["name"] != "Acme" || data["q"] != "x" {
		t.Errorf("Unexpected data %v", data)
	}
}

func TestEmptyBodyIsEmptyObject(t *testing.T) {
	routes := NewTable()
	routes.MustHandle("PUT /api/thing", func(req *Request) (*Result, error) {
		body := struct {
			Enabled *bool `json:"enabled"`
		}{}
		if err := req.Bind(&body); err != nil {
			return nil, err
		}
		return OK(gin.H{"set": body.Enabled != nil}), nil
	})
	r := setupEngine(t, routes)

	w, env := do(r, "PUT", "/api/thing", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %s", w.Code, w.Body.String())
	}
	if set := env.Data.(map[string]any)["set"]; set != false {
		t.Errorf("Expected enabled to be unset, got %v", set)
	}
}

func TestInvalidJSONBodyIs400(t *testing.T) {
	called := false
	routes := NewTable()
	routes.MustHandle("POST /api/links", func(*Request) (*Result, error) {
		called = true
		return Message("ok"), nil
	})
	r := setupEngine(t, routes)

	w, env := do(r, "POST", "/api/links", `{"clientName":`)
	if w.Code != http.StatusBadRequest || env.Error != "Invalid JSON body" {
		t.Errorf("Expected 400 Invalid JSON body, got %d %q", w.Code, env.Error)
	}
	if called {
		t.Error("Handler should not run for invalid JSON")
	}
}

func TestBodyTooLarge(t *testing.T) {
	routes := NewTable()
	routes.MustHandle("POST /api/links", func(*Request) (*Result, error) { return Message("ok"), nil })
	r := setupEngine(t, routes)

	big := `{"x":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	w, env := do(r, "POST", "/api/links", big)
	if w.Code != http.StatusBadRequest || env.Error != "Request body too large" {
		t.Errorf("Expected 400 Request body too large, got %d %q", w.Code, env.Error)
	}
}

func TestHandlerErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperror.Validation("Passwords do not match"), 400, "Passwords do not match"},
		{"auth", apperror.Unauthorized("Current password is incorrect"), 401, "Current password is incorrect"},
		{"not found", apperror.NotFound("Link not found"), 404, "Link not found"},
		{"internal", apperror.Internal("Failed to fetch links", errors.New("db is down")), 500, "Failed to fetch links"},
		{"unknown", errors.New("secret detail"), 500, apperror.InternalMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes := NewTable()
			routes.MustHandle("GET /api/fail", func(*Request) (*Result, error) { return nil, tt.err })
			r := setupEngine(t, routes)

			w, env := do(r, "GET", "/api/fail", "")
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if env.Success || env.Error != tt.message {
				t.Errorf("Expected error %q, got %+v", tt.message, env)
			}
			body := w.Body.String()
			if strings.Contains(body, "db is down") || strings.Contains(body, "secret detail") {
				t.Errorf("Internal detail leaked: %s", body)
			}
		})
	}
}

func TestPanicIsRecovered(t *testing.T) {
	routes := NewTable()
	routes.MustHandle("GET /api/boom", func(*Request) (*Result, error) { panic("kaboom") })
	r := setupEngine(t, routes)

	w, env := do(r, "GET", "/api/boom", "")
	if w.Code != http.StatusInternalServerError || env.Error != apperror.InternalMessage {
		t.Errorf("Expected 500 %q, got %d %q", apperror.InternalMessage, w.Code, env.Error)
	}
}

func TestMessageAndEmptyListEnvelopes(t *testing.T) {
	routes := NewTable()
	routes.MustHandle("DELETE /api/links/:id", func(*Request) (*Result, error) {
		return Message("Link deleted successfully"), nil
	})
	routes.MustHandle("GET /api/links", func(*Request) (*Result, error) {
		return OK([]string{}), nil
	})
	r := setupEngine(t, routes)

	w, env := do(r, "DELETE", "/api/links/1", "")
	if w.Code != http.StatusOK || env.Message != "Link deleted successfully" {
		t.Errorf("Expected message envelope, got %d %s", w.Code, w.Body.String())
	}
	if env.Data != nil {
		t.Errorf("Expected no data, got %v", env.Data)
	}

	w, _ = do(r, "GET", "/api/links", "")
	if body := w.Body.String(); body != `{"success":true,"data":[]}` {
		t.Errorf("Expected empty list envelope, got %s", body)
	}
}

func TestBindValidatesBindingTags(t *testing.T) {
	type createRequest struct {
		ClientName  string `json:"clientName" binding:"required"`
		ClientEmail string `json:"clientEmail" binding:"required,email"`
		Enabled     *bool  `json:"enabled" binding:"required"`
	}
	routes := NewTable()
	routes.MustHandle("POST /api/things", func(req *Request) (*Result, error) {
		var body createRequest
		if err := req.Bind(&body); err != nil {
			return nil, err
		}
		return Created(body), nil
	})
	r := setupEngine(t, routes)

	w, env := do(r, "POST", "/api/things", `{"clientEmail":"not-an-email","enabled":false}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	for _, want := range []string{"clientName is required", "clientEmail must be a valid email address"} {
		if !strings.Contains(env.Error, want) {
			t.Errorf("Expected %q in %q", want, env.Error)
		}
	}

	w, env = do(r, "POST", "/api/things", `{"clientName":"Acme","clientEmail":"a@acme.com"}`)
	if w.Code != http.StatusBadRequest || env.Error != "enabled is required" {
		t.Errorf("Expected 400 enabled is required, got %d %q", w.Code, env.Error)
	}

	w, _ = do(r, "POST", "/api/things", `{"clientName":"Acme","clientEmail":"a@acme.com","enabled":false}`)
	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201 for explicit false, got %d", w.Code)
	}

	w, env = do(r, "POST", "/api/things", `{"clientName":42}`)
	if w.Code != http.StatusBadRequest || env.Error != "Invalid request body" {
		t.Errorf("Expected 400 Invalid request body, got %d %q", w.Code, env.Error)
	}
}

func TestParamsAreUnescaped(t *testing.T) {
	routes := NewTable()
	routes.MustHandle("DELETE /api/user/security/sessions/:device", func(req *Request) (*Result, error) {
		return OK(req.Params.Get("device")), nil
	})
	r := setupEngine(t, routes)

	tests := map[string]string{
		"/api/user/security/sessions/Chrome%20-%20Desktop": "Chrome - Desktop",
		"/api/user/security/sessions/Work%2FLaptop":        "Work/Laptop",
	}
	for path, want := range tests {
		w, env := do(r, "DELETE", path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
			continue
		}
		if env.Data != want {
			t.Errorf("%s: expected %q, got %v", path, want, env.Data)
		}
	}
}
