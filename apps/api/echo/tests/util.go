package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/liamAduDonkor/adesua-sub000/apps/api/echo"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
	rendersvc "github.com/liamAduDonkor/adesua-sub000/services/render"
	testutil "github.com/liamAduDonkor/adesua-sub000/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

// artifactStore serves the refs produced by the stack renderer.
type artifactStore struct {
	mu    sync.Mutex
	files map[string]string
}

func (s *artifactStore) Put(ref, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string]string)
	}
	s.files[ref] = content
}

func (s *artifactStore) Open(ref string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[ref]
	if !ok {
		return nil, rendersvc.ErrUnknownArtifact
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type env struct {
	*testutil.Stack
	Server    *Server
	Artifacts *artifactStore
}

func setup(t *testing.T) *env {
	st := testutil.NewStack(t)
	testutil.SeedStudents(t, st.Store)

	e := &env{Stack: st, Artifacts: &artifactStore{}}
	e.Server = NewServer("", make(chan os.Signal, 1), &ServerDeps{
		Conf:       st.Conf,
		Logger:     st.Logger,
		Reports:    st.Service,
		Resolver:   st.Resolver,
		Engine:     st.Engine,
		Scorer:     st.Scorer,
		Store:      st.Store,
		Artifacts:  e.Artifacts,
		Validate:   st.Validate,
		Translator: st.Translator,
	})
	return e
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (e *env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.Server.ServeHTTP(rec, req)
	return rec
}

func (e *env) getToken(t *testing.T, p scope.Principal) string {
	token, err := GenerateToken(e.Conf, NewClaims(e.Conf, p))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshall(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
