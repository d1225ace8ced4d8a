// Package dispatch runs API handlers resolved by the route table and makes
// sure every request ends in a JSON envelope, whatever the handler does.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/commlink/pkg/commlink/apperror"
	"github.com/mikepea/commlink/pkg/commlink/auth"
	"github.com/mikepea/commlink/pkg/commlink/router"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// HandlerFunc handles one API call. Returning an *apperror.Error picks the
// status and client message; any other error becomes a generic 500.
type HandlerFunc func(*Request) (*Result, error)

// Table is the route table the dispatcher resolves against.
type Table = router.Table[HandlerFunc]

func NewTable() *Table {
	return router.New[HandlerFunc]()
}

// Request is what a handler sees of the HTTP request.
type Request struct {
	Context  context.Context
	Identity auth.Identity
	Method   string
	Path     string
	Params   router.Params
	Query    url.Values
	Body     []byte
}

// Bind decodes the JSON body into v and checks its `binding` tags. An empty
// body decodes as {}.
func (r *Request) Bind(v any) error {
	if len(bytes.TrimSpace(r.Body)) > 0 {
		if err := json.Unmarshal(r.Body, v); err != nil {
			return apperror.Validation("Invalid request body")
		}
	}
	return validateStruct(v)
}

// Result is a successful outcome. Status defaults to 200.
type Result struct {
	Status  int
	Data    any
	Message string
}

func OK(data any) *Result {
	return &Result{Status: http.StatusOK, Data: data}
}

func Created(data any) *Result {
	return &Result{Status: http.StatusCreated, Data: data}
}

func Message(msg string) *Result {
	return &Result{Status: http.StatusOK, Message: msg}
}

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type Dispatcher struct {
	routes *Table
	logger *slog.Logger
}

func New(routes *Table, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{routes: routes, logger: logger}
}

// Handle is the gin handler that serves every API path.
func (d *Dispatcher) Handle(c *gin.Context) {
	// Match on the escaped path so an encoded '/' stays inside its segment.
	m, err := d.routes.Match(c.Request.Method, c.Request.URL.EscapedPath())
	if err != nil {
		d.fail(c, "", apperror.RouteNotFound())
		return
	}
	for name, v := range m.Params {
		if unescaped, err := url.PathUnescape(v); err == nil {
			m.Params[name] = unescaped
		}
	}

	body, err := readBody(c)
	if err != nil {
		d.fail(c, m.Pattern, err)
		return
	}

	identity, _ := auth.GetIdentity(c)
	req := &Request{
		Context:  c.Request.Context(),
		Identity: identity,
		Method:   c.Request.Method,
		Path:     c.Request.URL.Path,
		Params:   m.Params,
		Query:    c.Request.URL.Query(),
		Body:     body,
	}

	res, err := m.Handler(req)
	if err != nil {
		d.fail(c, m.Pattern, err)
		return
	}
	if res == nil {
		res = &Result{}
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, Envelope{Success: true, Data: res.Data, Message: res.Message})
}

func (d *Dispatcher) fail(c *gin.Context, pattern string, err error) {
	appErr := apperror.As(err)
	if appErr.Kind == apperror.KindInternal {
		d.logger.Error("Request failed",
			"route", pattern,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
	} else {
		d.logger.Debug("Request rejected", "route", pattern, "kind", appErr.Kind, "error", appErr.Message)
	}
	c.JSON(appErr.HTTPStatus(), Envelope{Success: false, Error: appErr.Message})
}

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperror.Validation("Request body too large")
		}
		return nil, apperror.Internal(apperror.InternalMessage, err)
	}
	if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
		return nil, apperror.Validation("Invalid JSON body")
	}
	return body, nil
}
