// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/skkn-master/internal/llm"
	"github.com/pdiddy/skkn-master/pkg/types"
)

const sampleBody = `{"topic":"X","subject":"Toán","grade":"10","school":"Y","textbook":"Z"}`

func newTestServer(t *testing.T, svc llm.Service) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(Config{
		Service: svc,
		Now:     func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, ts *httptest.Server) sessionResp {
	t.Helper()
	resp := post(t, ts.URL+"/api/sessions", sampleBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	return decode[sessionResp](t, resp)
}

func pollDocument(t *testing.T, ts *httptest.Server, id string, offset int) documentResp {
	t.Helper()
	resp := get(t, ts.URL+"/api/sessions/"+id+"/document?offset="+strconv.Itoa(offset))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[documentResp](t, resp)
}

func waitIdle(t *testing.T, ts *httptest.Server, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !pollDocument(t, ts, id, 0).Streaming
	}, 5*time.Second, 5*time.Millisecond)
}

func TestCreateAndPollDocument(t *testing.T) {
	svc := llm.NewScripted(llm.Reply{Fragments: []string{"Dàn ý: ", "I. Mở đầu"}})
	_, ts := newTestServer(t, svc)

	created := createSession(t, ts)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, types.StepOutline, created.State.Step)
	assert.Equal(t, created.SessionID, created.State.SessionID)

	waitIdle(t, ts, created.SessionID)

	doc := pollDocument(t, ts, created.SessionID, 0)
	assert.Equal(t, "Dàn ý: I. Mở đầu", doc.Text)
	assert.Equal(t, len("Dàn ý: I. Mở đầu"), doc.Offset)
	assert.Equal(t, types.StepOutline, doc.Step)

	doc = pollDocument(t, ts, created.SessionID, len("Dàn ý: "))
	assert.Equal(t, "I. Mở đầu", doc.Text)

	resp := get(t, ts.URL+"/api/sessions/"+created.SessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[sessionResp](t, resp)
	assert.Equal(t, "Dàn ý: I. Mở đầu", got.State.Document)
	assert.False(t, got.State.Streaming)
}

func TestCreateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		svc  llm.Service
		body string
		want string
	}{
		{"invalid json", llm.NewScripted(), `{`, "unexpected EOF"},
		{"missing fields", llm.NewScripted(), `{"topic":"X"}`, "missing required fields: subject, grade, school, textbook"},
		{"missing credential", &llm.Scripted{ValidateErr: llm.ErrNoCredential}, sampleBody, "no API key configured"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ts := newTestServer(t, tc.svc)
			resp := post(t, ts.URL+"/api/sessions", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decode[errorResp](t, resp).Error, tc.want)
		})
	}
}

func TestAdvance(t *testing.T) {
	gate := make(chan struct{})
	svc := llm.NewScripted(
		llm.Reply{Fragments: []string{"outline"}, Wait: gate},
		llm.Reply{Fragments: []string{" part I"}},
	)
	_, ts := newTestServer(t, svc)
	created := createSession(t, ts)
	advanceURL := ts.URL + "/api/sessions/" + created.SessionID + "/advance"

	resp := post(t, advanceURL, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decode[errorResp](t, resp).Error, "already in progress")

	close(gate)
	waitIdle(t, ts, created.SessionID)

	resp = post(t, advanceURL, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, types.StepPartIAndII, decode[sessionResp](t, resp).State.Step)

	waitIdle(t, ts, created.SessionID)
	assert.Equal(t, "outline part I", pollDocument(t, ts, created.SessionID, 0).Text)
}

func TestUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, llm.NewScripted())
	for _, path := range []string{"/api/sessions/nope", "/api/sessions/nope/document", "/api/sessions/nope/export"} {
		resp := get(t, ts.URL+path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	resp := post(t, ts.URL+"/api/sessions/nope/advance", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadOffset(t *testing.T) {
	_, ts := newTestServer(t, llm.NewScripted())
	created := createSession(t, ts)
	resp := get(t, ts.URL+"/api/sessions/"+created.SessionID+"/document?offset=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExport(t *testing.T) {
	_, ts := newTestServer(t, llm.NewScripted(llm.Reply{Fragments: []string{"# Dàn ý\n"}}))
	created := createSession(t, ts)
	waitIdle(t, ts, created.SessionID)

	resp := get(t, ts.URL+"/api/sessions/"+created.SessionID+"/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.ms-word; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename=SKKN_VANHA_2026.doc`, resp.Header.Get("Content-Disposition"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte("<h1>Dàn ý</h1>")))
	assert.True(t, bytes.Contains(body, []byte("Người thực hiện: VANHA")))
}

func TestSteps(t *testing.T) {
	_, ts := newTestServer(t, llm.NewScripted())
	resp := get(t, ts.URL+"/api/steps")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	steps := decode[[]stepResp](t, resp)
	require.Len(t, steps, 8)
	assert.Equal(t, "INPUT_FORM", steps[0].Name)
	assert.Equal(t, "COMPLETED", steps[7].Name)
	assert.NotEmpty(t, steps[1].Label)
}

func TestShutdownCancelsGeneration(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	srv, ts := newTestServer(t, llm.NewScripted(llm.Reply{Fragments: []string{"x"}, Wait: gate}))
	created := createSession(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	resp := get(t, ts.URL+"/api/sessions/"+created.SessionID)
	state := decode[sessionResp](t, resp).State
	assert.False(t, state.Streaming)
	assert.Contains(t, state.Error, "context canceled")
	assert.Equal(t, types.StepOutline, state.Step)
}

func TestNewRequiresService(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func del(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDeleteSession(t *testing.T) {
	gate := make(chan struct{})
	svc := llm.NewScripted(llm.Reply{Fragments: []string{"x"}, Wait: gate})
	_, ts := newTestServer(t, svc)
	created := createSession(t, ts)
	url := ts.URL + "/api/sessions/" + created.SessionID

	resp := del(t, url)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(gate)
	waitIdle(t, ts, created.SessionID)

	resp = del(t, url)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, url).StatusCode)
	assert.Equal(t, http.StatusNotFound, del(t, url).StatusCode)
}

func TestRequestsAfterShutdownAreRejected(t *testing.T) {
	srv, ts := newTestServer(t, llm.NewScripted())
	created := createSession(t, ts)
	waitIdle(t, ts, created.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	resp := post(t, ts.URL+"/api/sessions", sampleBody)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, decode[errorResp](t, resp).Error, "shutting down")

	resp = post(t, ts.URL+"/api/sessions/"+created.SessionID+"/advance", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = get(t, ts.URL+"/api/sessions/"+created.SessionID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOutline(t *testing.T) {
	body := `{"abstract":"Tóm tắt","situation":"Thực trạng","solutions":["GP1"],"results":"Kết quả"}`
	_, ts := newTestServer(t, llm.NewScripted(llm.Reply{Fragments: []string{body}}))

	resp := post(t, ts.URL+"/api/outline", `{"title":"X","subject":"Toán","grade":"10"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "Tóm tắt", out["abstract"])
	assert.Equal(t, []any{"GP1"}, out["solutions"])
}

func TestOutlineAndSuggestErrors(t *testing.T) {
	tests := []struct {
		name   string
		svc    *llm.Scripted
		path   string
		body   string
		status int
	}{
		{"outline missing fields", llm.NewScripted(), "/api/outline", `{"title":"X"}`, http.StatusBadRequest},
		{"outline bad reply", llm.NewScripted(llm.Reply{Fragments: []string{"không phải JSON"}}), "/api/outline", `{"title":"X","subject":"s","grade":"g"}`, http.StatusBadGateway},
		{"suggest no credential", &llm.Scripted{ValidateErr: llm.ErrNoCredential}, "/api/suggest", `{"prompt":"p"}`, http.StatusBadRequest},
		{"suggest empty prompt", llm.NewScripted(), "/api/suggest", `{"context":"c"}`, http.StatusBadRequest},
		{"suggest invalid json", llm.NewScripted(), "/api/suggest", `{`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ts := newTestServer(t, tc.svc)
			resp := post(t, ts.URL+tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotEmpty(t, decode[errorResp](t, resp).Error)
		})
	}
}

func TestSuggest(t *testing.T) {
	svc := llm.NewScripted(llm.Reply{Fragments: []string{"Dùng ", "sơ đồ tư duy."}})
	_, ts := newTestServer(t, svc)

	resp := post(t, ts.URL+"/api/suggest", `{"prompt":"Gợi ý giải pháp","context":"Phần III"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Dùng sơ đồ tư duy.", decode[suggestResp](t, resp).Text)
	assert.Equal(t, []string{"Context: Phần III\n\nTask: Gợi ý giải pháp"}, svc.Sent())
}
