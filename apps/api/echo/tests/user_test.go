package tests

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	echoapi "github.com/trezcool/mtihani/apps/api/echo"
	"github.com/trezcool/mtihani/core/user"
	testutil "github.com/trezcool/mtihani/tests"
)

func TestUserLogin(t *testing.T) {
	db.Reset()
	usr := testutil.CreateUser(t, usrRepo, "John Keys", "john@test.cd", "12345678", "LePass123", user.RoleStudent, true)
	inactive := testutil.CreateUser(t, usrRepo, "Jane Off", "jane@test.cd", "87654321", "LePass123", user.RoleStudent, false)

	tests := []httpTest{
		{
			name: "fields required", body: marchallObj(t, echo.Map{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"cin": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", body: marchallObj(t, echo.Map{"cin": "00000000", "password": "LePass123"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: marchallObj(t, echo.Map{"cin": usr.CIN, "password": "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: marchallObj(t, echo.Map{"cin": inactive.CIN, "password": "LePass123"}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("login with CIN", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"cin": usr.CIN, "password": "LePass123"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("login failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var resp echoapi.LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling LoginResponse: %v", err)
		}
		if resp.Token == "" {
			t.Error("expected a token")
		}
	})

	t.Run("login with email", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"cin": usr.Email, "password": "LePass123"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("login failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
	})
}

func TestUserRegister(t *testing.T) {
	db.Reset()
	existing := testutil.CreateUser(t, usrRepo, "John Keys", "john@test.cd", "12345678", "LePass123", user.RoleStudent, true)

	tests := []httpTest{
		{
			name: "fields required", body: marchallObj(t, echo.Map{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":             "this field is required",
				"email":            "this field is required",
				"cin":              "this field is required",
				"password":         "this field is required",
				"password_confirm": "this field is required",
			}),
		},
		{
			name: "CIN must be 8 digits",
			body: marchallObj(t, echo.Map{
				"name": "Bob", "email": "bob@test.cd", "cin": "12ab",
				"password": "LePass123", "password_confirm": "LePass123",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"cin": "must be exactly 8 digits"}),
		},
		{
			name: "duplicate email",
			body: marchallObj(t, echo.Map{
				"name": "Bob", "email": existing.Email, "cin": "11111111",
				"password": "LePass123", "password_confirm": "LePass123",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "duplicate CIN",
			body: marchallObj(t, echo.Map{
				"name": "Bob", "email": "bob@test.cd", "cin": existing.CIN,
				"password": "LePass123", "password_confirm": "LePass123",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"cin": user.ErrCINExists.Error()}),
		},
		{
			name: "admin role is not self-served",
			body: marchallObj(t, echo.Map{
				"name": "Bob", "email": "bob@test.cd", "cin": "11111111", "role": user.RoleAdmin,
				"password": "LePass123", "password_confirm": "LePass123",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"role": "not enough rights to set this role"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/register", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("register defaults to student", func(t *testing.T) {
		body := marchallObj(t, echo.Map{
			"name": "Bob Builder", "email": "bob@test.cd", "cin": "11111111",
			"password": "LePass123", "password_confirm": "LePass123",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("register failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling User: %v", err)
		}
		if usr.ID == "" {
			t.Error("expected an id")
		}
		if usr.Role != user.RoleStudent {
			t.Errorf("role = %v; want %v", usr.Role, user.RoleStudent)
		}
		if !usr.IsActive {
			t.Error("expected an active account")
		}
	})
}

func TestUserQuery(t *testing.T) {
	db.Reset()
	now := time.Now().UTC()
	student := testutil.CreateUser(t, usrRepo, "John Keys", "john@test.cd", "12345678", "LePass123", user.RoleStudent, true, now.Add(-time.Hour))
	admin := testutil.CreateUser(t, usrRepo, "Amina Boss", "amina@test.cd", "99999999", "LePass123", user.RoleAdmin, true, now)

	tests := []httpTest{
		{
			name: "auth required", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "admin required", token: getToken(t, student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin lists users newest first", token: getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallList(t, admin, student),
		},
		{
			name: "filter by role", path: "/v1/users?role=student", token: getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallList(t, student),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = "/v1/users"
			}
			req, rec := newAuthRequest(http.MethodGet, path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestUserRoles(t *testing.T) {
	db.Reset()
	student := testutil.CreateUser(t, usrRepo, "John Keys", "john@test.cd", "12345678", "LePass123", user.RoleStudent, true)
	admin := testutil.CreateUser(t, usrRepo, "Amina Boss", "amina@test.cd", "99999999", "LePass123", user.RoleAdmin, true)

	tests := []httpTest{
		{
			name: "auth required", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "admin required", token: getToken(t, student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "lists all assignable roles", token: getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, user.Roles),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestUserRetrieveUpdate(t *testing.T) {
	db.Reset()
	student := testutil.CreateUser(t, usrRepo, "John Keys", "john@test.cd", "12345678", "LePass123", user.RoleStudent, true)
	other := testutil.CreateUser(t, usrRepo, "Jane Other", "jane@test.cd", "87654321", "LePass123", user.RoleStudent, true)
	admin := testutil.CreateUser(t, usrRepo, "Amina Boss", "amina@test.cd", "99999999", "LePass123", user.RoleAdmin, true)

	t.Run("own account is visible", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+student.ID, getToken(t, student))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, student)}, rec)
	})

	t.Run("someone else's account is hidden", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+other.ID, getToken(t, student))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		}, rec)
	})

	t.Run("admin sees any account", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+other.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, other)}, rec)
	})

	t.Run("self update cannot touch role", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"role": user.RoleTeacher})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, student), body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}, rec)
	})

	t.Run("self update name", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"name": "John B. Keys"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, student), body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("update failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling User: %v", err)
		}
		if usr.Name != "John B. Keys" {
			t.Errorf("name = %v; want %v", usr.Name, "John B. Keys")
		}
	})

	t.Run("admin promotes to teacher", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"role": user.RoleTeacher})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+other.ID, getToken(t, admin), body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("update failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling User: %v", err)
		}
		if usr.Role != user.RoleTeacher {
			t.Errorf("role = %v; want %v", usr.Role, user.RoleTeacher)
		}
	})
}

func TestUserPasswordReset(t *testing.T) {
	db.Reset()
	mailSvc.Reset()
	usr := testutil.CreateUser(t, usrRepo, "John Keys", "john@test.cd", "12345678", "LePass123", user.RoleStudent, true)

	// unknown emails get the same neutral answer
	t.Run("unknown email leaks nothing", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"email": "ghost@test.cd"})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("reset failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		if len(mailSvc.SentMessages) != 0 {
			t.Errorf("no email expected; got %d", len(mailSvc.SentMessages))
		}
	})

	var uid, token string
	t.Run("reset email carries uid and token", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"email": usr.Email})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("reset failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		if len(mailSvc.SentMessages) != 1 {
			t.Fatalf("expected 1 email; got %d", len(mailSvc.SentMessages))
		}

		linkRe := regexp.MustCompile(`password-reset\?uid=([^&\s]+)&token=([^&\s]+)`)
		match := linkRe.FindStringSubmatch(mailSvc.SentMessages[0].Body)
		if match == nil {
			t.Fatalf("no reset link in email body: %s", mailSvc.SentMessages[0].Body)
		}
		uid, _ = url.QueryUnescape(match[1])
		token, _ = url.QueryUnescape(match[2])
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		body := marchallObj(t, echo.Map{
			"uid": uid, "token": "lol-nope",
			"password": "NewPass456", "password_confirm": "NewPass456",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		}, rec)
	})

	t.Run("confirm then login with new password", func(t *testing.T) {
		body := marchallObj(t, echo.Map{
			"uid": uid, "token": token,
			"password": "NewPass456", "password_confirm": "NewPass456",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("confirm failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}

		login := marchallObj(t, echo.Map{"cin": usr.CIN, "password": "NewPass456"})
		req, rec = newRequest(http.MethodPost, "/v1/users/login", login)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("login with new password failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
	})
}

func TestStudentsEnrollment(t *testing.T) {
	db.Reset()
	mailSvc.Reset()
	teacher := testutil.CreateUser(t, usrRepo, "Tina Teach", "tina@test.cd", "22222222", "LePass123", user.RoleTeacher, true)
	stu1 := testutil.CreateUser(t, usrRepo, "Ali Prime", "ali@test.cd", "33333333", "LePass123", user.RoleStudent, true)
	stu2 := testutil.CreateUser(t, usrRepo, "Zoe Last", "zoe@test.cd", "44444444", "LePass123", user.RoleStudent, true)

	t.Run("students cannot enroll", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"cins": []string{stu2.CIN}})
		req, rec := newAuthRequest(http.MethodPost, "/v1/students", getToken(t, stu1), body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}, rec)
	})

	t.Run("enroll by CIN", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"cins": []string{stu1.CIN, stu2.CIN}})
		req, rec := newAuthRequest(http.MethodPost, "/v1/students", getToken(t, teacher), body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusCreated,
			wantData: marchallList(t, stu1, stu2),
		}, rec)
	})

	t.Run("unknown CIN is reported", func(t *testing.T) {
		body := marchallObj(t, echo.Map{"cins": []string{"00000000"}})
		req, rec := newAuthRequest(http.MethodPost, "/v1/students", getToken(t, teacher), body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"00000000": user.ErrNotFound.Error()}),
		}, rec)
	})

	t.Run("class list sorted by name", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students", getToken(t, teacher))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallList(t, stu1, stu2),
		}, rec)
	})
}

func TestTokenRefresh(t *testing.T) {
	db.Reset()
	usr := testutil.CreateUser(t, usrRepo, "John Keys", "john@test.cd", "12345678", "LePass123", user.RoleStudent, true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, usr))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var resp echoapi.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshalling LoginResponse: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a token")
	}
}
