package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// newTestClient creates a client whose portal and exchange endpoints point at server.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL + "/api/v1/dkhp"
	cfg.ExchangeURL = server.URL + "/get_token.php"

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "default config",
			config:      DefaultConfig(),
			expectError: false,
		},
		{
			name:        "missing base url",
			config:      Config{ExchangeURL: DefaultExchangeURL, Timeout: time.Second},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "missing exchange url",
			config:      Config{BaseURL: DefaultBaseURL, Timeout: time.Second},
			expectError: true,
			errorMsg:    "exchange url is required",
		},
		{
			name:        "zero timeout",
			config:      Config{BaseURL: DefaultBaseURL, ExchangeURL: DefaultExchangeURL},
			expectError: true,
			errorMsg:    "timeout must be positive (got 0s)",
		},
		{
			name: "custom http client needs no timeout",
			config: Config{
				BaseURL:     DefaultBaseURL,
				ExchangeURL: DefaultExchangeURL,
				HTTPClient:  http.DefaultClient,
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestRequest_Headers(t *testing.T) {
	var got http.Header
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotMethod = r.Method
		w.Write([]byte(`{"success": true, "body": []}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	ctx := WithRequestID(context.Background(), "req-123")

	if _, err := client.Request(ctx, server.URL+"/api/v1/dkhp/dangKyLopHocPhan?idLopHocPhan=1", "T0K", http.MethodPost, nil); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	expected := map[string]string{
		"Authorization": "Bearer T0K",
		"Accept":        "application/json",
		"Content-Type":  "application/json",
		"Cache-Control": "no-cache",
		"X-Request-Id":  "req-123",
		"User-Agent":    "dkhp-proxy/0.1.0",
	}
	for key, want := range expected {
		if v := got.Get(key); v != want {
			t.Errorf("header %s = %q, want %q", key, v, want)
		}
	}
}

func TestRequest_GetHasNoContentType(t *testing.T) {
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if _, err := client.Request(context.Background(), server.URL+"/api/v1/dkhp/getDot", "T", "", nil); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if contentType != "" {
		t.Errorf("Content-Type = %q, want empty for GET", contentType)
	}
}

func TestRequest_SendsJSONBody(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.Request(context.Background(), server.URL+"/x", "T", http.MethodPut, map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if body["a"] != float64(1) {
		t.Errorf("body = %v, want a=1", body)
	}
}

func TestRequest_ContractViolations(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := newTestClient(t, server)

	tests := []struct {
		name     string
		url      string
		token    string
		sentinel error
	}{
		{"missing token", server.URL + "/x", "", ErrMissingToken},
		{"missing url", "", "T", ErrMissingURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Request(context.Background(), tt.url, tt.token, http.MethodGet, nil)
			var upErr *UpstreamError
			if !errors.As(err, &upErr) || upErr.ErrorClass != ErrorClassContract {
				t.Fatalf("error = %v, want contract UpstreamError", err)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
		})
	}

	if calls != 0 {
		t.Errorf("upstream calls = %d, want 0", calls)
	}
}

func TestRequest_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantClass  ErrorClass
		wantStatus int
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"expired"}`, ErrorClassClient, 401},
		{"server error", http.StatusInternalServerError, `oops`, ErrorClassServer, 500},
		{"html instead of json", http.StatusOK, `<html>maintenance</html>`, ErrorClassMalformed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server)
			_, err := client.Request(context.Background(), server.URL+"/x", "T", http.MethodGet, nil)

			var upErr *UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("error = %v, want *UpstreamError", err)
			}
			if upErr.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", upErr.ErrorClass, tt.wantClass)
			}
			if upErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", upErr.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRequest_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, server)
	server.Close()

	_, err := client.Request(context.Background(), server.URL+"/x", "T", http.MethodGet, nil)
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.ErrorClass != ErrorClassNetwork {
		t.Fatalf("error = %v, want network UpstreamError", err)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) Observe(_ context.Context, endpoint string, statusCode int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	outcome := endpoint + ":ok"
	if err != nil {
		outcome = endpoint + ":err"
	}
	o.outcomes = append(o.outcomes, outcome)
}

func TestClient_ObserverNotified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getDot") {
			w.Write([]byte(`{"success": true, "body": []}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	observer := &recordingObserver{}
	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.Observer = observer
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	client.Periods(context.Background(), "T")
	client.Subjects(context.Background(), "T", 1)

	want := []string{"getDot:ok", "getHocPhanHocMoi:err"}
	if len(observer.outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", observer.outcomes, want)
	}
	for i := range want {
		if observer.outcomes[i] != want[i] {
			t.Errorf("outcome[%d] = %q, want %q", i, observer.outcomes[i], want[i])
		}
	}
}

func TestSubjects_QueryAndDecode(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/dkhp/getHocPhanHocMoi" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"success": true, "body": [{"maHocPhan": "CS101", "tenMonHoc": "Lập trình", "soTinChi": 3}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	subjects, err := client.Subjects(context.Background(), "T", 42)
	if err != nil {
		t.Fatalf("Subjects() error = %v", err)
	}
	if gotQuery != "idDot=42" {
		t.Errorf("query = %q, want idDot=42", gotQuery)
	}
	if len(subjects) != 1 || subjects[0].Code != "CS101" || subjects[0].Credits != "3" {
		t.Errorf("subjects = %+v", subjects)
	}
}

func TestPeriods_StringIDPassesThrough(t *testing.T) {
	body := `[{"id":"5","tenHocKy":"HK1","batDau":"2025-01-01"}]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "body": ` + body + `}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	periods, err := client.Periods(context.Background(), "T")
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}
	if len(periods) != 1 || periods[0].ID != 5 {
		t.Fatalf("periods = %+v", periods)
	}

	out, err := json.Marshal(periods)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != body {
		t.Errorf("Marshal() = %s, want %s", out, body)
	}
}

func TestClassSchedules_LooseFieldTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "body": [{"thu":"Thứ 2","tietHoc":1,"ngayBatDau":"2025-02-10"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	schedules, err := client.ClassSchedules(context.Background(), "T", 300)
	if err != nil {
		t.Fatalf("ClassSchedules() error = %v", err)
	}
	if len(schedules) != 1 || schedules[0].DayOfWeek != "Thứ 2" || schedules[0].PeriodSlot != "1" {
		t.Errorf("schedules = %+v", schedules)
	}
}

func TestClasses_Query(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"success": true, "body": null}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	classes, err := client.Classes(context.Background(), "T", 7, "CS 101&x")
	if err != nil {
		t.Fatalf("Classes() error = %v", err)
	}
	if classes == nil || len(classes) != 0 {
		t.Errorf("classes = %#v, want empty non-nil slice for null body", classes)
	}

	want := map[string]string{
		"idDot":                      "7",
		"maHocPhan":                  "CS 101&x",
		"isLocTrung":                 "False",
		"isLocTrungWithoutElearning": "false",
	}
	for key, value := range want {
		if got := gotQuery[key]; len(got) != 1 || got[0] != value {
			t.Errorf("query %s = %v, want %q", key, got, value)
		}
	}
}

func TestFetchList_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "Không có quyền"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.Periods(context.Background(), "T")

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upErr.ErrorClass != ErrorClassRejected || upErr.Message != "Không có quyền" {
		t.Errorf("error = %+v, want rejected with upstream message", upErr)
	}
}

func TestFetchList_BodyShapeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "body": {"not": "a list"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.Registrations(context.Background(), "T", 1)

	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.ErrorClass != ErrorClassMalformed {
		t.Fatalf("error = %v, want malformed UpstreamError", err)
	}
}

func TestRegister_ReturnsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Query().Get("idLopHocPhan") != "99" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		w.Write([]byte(`{"success": false, "message": "Lớp đã đầy"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	env, err := client.Register(context.Background(), "T", 99)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if env.Success || env.Message != "Lớp đã đầy" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestCancelRegistration(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantError bool
	}{
		{"success", `{"success": true}`, false},
		{"rejected", `{"success": false}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete || r.URL.Query().Get("idDangKy") != "abc/1" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL)
				}
				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := newTestClient(t, server)
			err := client.CancelRegistration(context.Background(), "T", "abc/1")
			if (err != nil) != tt.wantError {
				t.Errorf("CancelRegistration() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantToken string
		wantErr   error
		wantClass ErrorClass
	}{
		{name: "token issued", status: 200, body: `{"token": "T"}`, wantToken: "T"},
		{name: "no token", status: 200, body: `{"error": "sai mật khẩu"}`, wantErr: ErrInvalidCredentials},
		{name: "empty token", status: 200, body: `{"token": ""}`, wantErr: ErrInvalidCredentials},
		{name: "not json", status: 200, body: `Fatal error`, wantClass: ErrorClassMalformed},
		{name: "exchange down", status: 500, body: ``, wantClass: ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery map[string][]string
			var gotAuth string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query()
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := newTestClient(t, server)
			token, err := client.Login(context.Background(), "u@x", "p&q")

			if gotQuery["username"][0] != "u@x" || gotQuery["password"][0] != "p&q" {
				t.Errorf("query = %v", gotQuery)
			}
			if gotAuth != "" {
				t.Errorf("Authorization = %q, want none on exchange", gotAuth)
			}

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantClass != "":
				var upErr *UpstreamError
				if !errors.As(err, &upErr) || upErr.ErrorClass != tt.wantClass {
					t.Errorf("error = %v, want class %q", err, tt.wantClass)
				}
			default:
				if err != nil {
					t.Fatalf("Login() error = %v", err)
				}
				if token != tt.wantToken {
					t.Errorf("token = %q, want %q", token, tt.wantToken)
				}
			}
		})
	}
}

func TestLogin_NetworkErrorHidesCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, server)
	server.Close()

	_, err := client.Login(context.Background(), "student", "s3cret")
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Errorf("error leaks password: %v", err)
	}
}

func TestEndpointName(t *testing.T) {
	tests := map[string]string{
		"https://portal.ut.edu.vn/api/v1/dkhp/getDot":             "getDot",
		"https://portal.ut.edu.vn/api/v1/dkhp/getDot/?x=1":        "getDot",
		"https://portal.ut.edu.vn":                                "unknown",
		"https://portal.ut.edu.vn/huyDangKy?idDangKy=5":           "huyDangKy",
	}
	for in, want := range tests {
		if got := endpointName(in); got != want {
			t.Errorf("endpointName(%q) = %q, want %q", in, got, want)
		}
	}
}
