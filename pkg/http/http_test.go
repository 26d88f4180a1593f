package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CandlePull/internal/domain/errs"
)

func TestClientPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "candlepull", r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"symbol":"EURUSD"}`, string(body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithHeader("User-Agent", "candlepull"))
	var out struct{ OK bool }
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]string{"symbol": "EURUSD"}, &out))
	assert.True(t, out.OK)
}

func TestClientStatusError(t *testing.T) {
	code := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad symbol", code)
	}))
	defer srv.Close()

	c := NewClient()
	err := c.GetJSON(context.Background(), srv.URL, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "bad symbol", se.Body)
	assert.False(t, se.Temporary())

	code = http.StatusTooManyRequests
	err = c.GetJSON(context.Background(), srv.URL, nil)
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Temporary())
}

type historyQuery struct {
	Instrument string `query:"instrument" validate:"required"`
	Period     string `query:"period" default:"M1" validate:"oneof=M1 H1"`
	Limit      int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

func bindQuery(target string, req interface{}) interface{} {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	return ReadAndValidateRequest(c, req)
}

func TestReadAndValidateRequest(t *testing.T) {
	req := &historyQuery{}
	assert.Nil(t, bindQuery("/?instrument=EURUSD", req))
	assert.Equal(t, "M1", req.Period)
	assert.Equal(t, 10, req.Limit)

	verr := bindQuery("/?period=D7&limit=500", &historyQuery{})
	list, ok := verr.([]ValidationError)
	require.True(t, ok)
	fields := map[string]ValidationError{}
	for _, v := range list {
		fields[v.Field] = v
	}
	assert.Equal(t, "ERR_REQUIRED", fields["instrument"].Code)
	assert.Equal(t, "period must be one of: M1, H1", fields["period"].Message)
	assert.Equal(t, "100", fields["limit"].Params["max"])
}

func TestFromDomain(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errs.Validation("from", "bad literal"), http.StatusBadRequest, string(errs.KindValidation)},
		{errs.Resolutionf("unknown instrument %q", "XYZ"), http.StatusNotFound, string(errs.KindResolution)},
		{errs.Configuration("mixed range"), http.StatusUnprocessableEntity, string(errs.KindConfiguration)},
		{errs.SourceUnavailable("terminal down", nil), http.StatusServiceUnavailable, string(errs.KindSourceUnavailable)},
		{ServiceUnavailableError("queue"), http.StatusServiceUnavailable, "ERR_SERVICE_UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "ERR_INTERNAL"},
	}
	for _, tc := range cases {
		got := FromDomain(tc.err)
		assert.Equal(t, tc.status, got.Status, tc.err.Error())
		assert.Equal(t, tc.code, got.Code, tc.err.Error())
	}
	assert.Equal(t, "from", FromDomain(errs.Validation("from", "bad")).Field)
}

func TestAppErrorResponseHidesInternals(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, errors.New("db password leaked")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "password"))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Something went wrong", resp.Data)
}

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
}

func TestServerStartBindsAndStops(t *testing.T) {
	srv := NewServer(pingRoutes{}, nil, WithHost("127.0.0.1"), WithPort(0), WithCORS(false))
	require.NoError(t, srv.Start())

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/ping")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "pong", body)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServerStartReportsBindError(t *testing.T) {
	srv := NewServer(nil, nil, WithHost("256.0.0.1"), WithPort(1))
	assert.Error(t, srv.Start())
}
