package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/coordinator"
	"github.com/and161185/fitsync/internal/errs"
	"github.com/and161185/fitsync/internal/model"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", time.Second, nil)
	require.NoError(t, err)
	return c
}

// staticAuth hands out tokens in order and retries once on ErrAuthorizationExpired.
type staticAuth struct {
	tokens []string
	calls  atomic.Int32
}

func (a *staticAuth) Do(ctx context.Context, call coordinator.Call) error {
	err := call(ctx, a.tokens[0])
	a.calls.Add(1)
	if errors.Is(err, errs.ErrAuthorizationExpired) && len(a.tokens) > 1 {
		a.calls.Add(1)
		return call(ctx, a.tokens[1])
	}
	return err
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "ftp://x", "http://"} {
		_, err := New(raw, 0, nil)
		require.Error(t, err, raw)
	}
}

func TestLogin(t *testing.T) {
	uid := uuid.Must(uuid.NewV4())
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, pathLogin, r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var creds model.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, model.Credentials{Email: "a@b.c", Password: "pw", Domain: "gym"}, creds)
		_, _ = io.WriteString(w, `{"token":"at","refreshToken":"rt","expiresAt":1700000000000,
			"user":{"id":"`+uid.String()+`","name":"Ana","email":"a@b.c","role":"STUDENT","unitId":"u1","status":"ACTIVE"}}`)
	})

	sess, err := c.Login(context.Background(), model.Credentials{Email: "a@b.c", Password: "pw", Domain: "gym"})
	require.NoError(t, err)
	require.Equal(t, model.AuthTokens{Token: "at", RefreshToken: "rt", ExpiresAt: 1700000000000}, sess.Tokens)
	require.Equal(t, uid, sess.User.ID)
	require.Equal(t, model.RoleStudent, sess.User.Role)
	require.Equal(t, "u1", sess.User.UnitID)
}

func TestLogin_MissingUserLeftForCaller(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"token":"at"}`)
	})
	sess, err := c.Login(context.Background(), model.Credentials{})
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, sess.User.ID)
}

func TestErrorBodies(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"validation list", 400, `{"message":["email must be an email","password too short"],"error":"Bad Request","statusCode":400}`,
			errs.ErrValidation, "email must be an email\npassword too short"},
		{"unauthorized", 401, `{"message":"Invalid credentials","statusCode":401}`, errs.ErrAuthorizationExpired, "Invalid credentials"},
		{"server html", 502, `<html>bad gateway</html>`, errs.ErrServer, "http 502"},
		{"error only", 409, `{"error":"Conflict"}`, errs.ErrValidation, "Conflict"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.SignUp(context.Background(), model.SignUp{Email: "x"})
			require.ErrorIs(t, err, tc.want)
			var apiErr *errs.APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tc.status, apiErr.Status)
			require.Equal(t, tc.message, err.Error())
		})
	}
}

func TestRefresh(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathRefresh, r.URL.Path)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, "rt", in["refreshToken"])
		_, _ = io.WriteString(w, `{"token":"new"}`)
	})
	tok, err := c.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	require.Equal(t, "new", tok.Token)
	require.Empty(t, tok.RefreshToken)
}

func TestLogout_SendsBearer(t *testing.T) {
	var got string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Logout(context.Background(), "at"))
	require.Equal(t, "Bearer at", got)
}

func TestNetworkAndDecodeFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	c, err := New(srv.URL, time.Second, nil)
	require.NoError(t, err)
	srv.Close()
	_, err = c.Refresh(context.Background(), "rt")
	require.ErrorIs(t, err, errs.ErrNetwork)

	bad := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"token":`)
	})
	_, err = bad.Refresh(context.Background(), "rt")
	require.ErrorIs(t, err, errs.ErrDecode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = bad.Refresh(ctx, "rt")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, errs.ErrNetwork)
}

func TestCollection_ListQueryAndRetry(t *testing.T) {
	var seen atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, PathPlans, r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "s1", q.Get("studentId"))
		require.Equal(t, "ACTIVE", q.Get("status"))
		require.Equal(t, "2026-01-01T00:00:00Z", q.Get("from"))
		require.Empty(t, q.Get("to"))
		_, _ = io.WriteString(w, `[{"id":"00000000-0000-0000-0000-000000000001","name":"A","status":"ACTIVE"}]`)
	})
	auth := &staticAuth{tokens: []string{"stale", "fresh"}}
	plans := NewCollection[model.TrainingPlan](c, auth, PathPlans)

	got, err := plans.List(context.Background(), cache.Filter{
		OwnerID: "s1", Status: "ACTIVE", From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].Name)
	require.Equal(t, int32(2), seen.Load())
}

func TestCollection_EmptyListIsNotNil(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `null`)
	})
	got, err := NewCollection[model.TrainingPlan](c, &staticAuth{tokens: []string{"t"}}, PathPlans).
		List(context.Background(), cache.Filter{})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestCollection_GetAndUpdate(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathExecutions+"/"+id.String(), r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"id":"`+id.String()+`","status":"IN_PROGRESS"}`)
		case http.MethodPut:
			var e model.TrainingExecution
			require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
			e.Notes = "stored"
			require.NoError(t, json.NewEncoder(w).Encode(e))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	execs := NewCollection[model.TrainingExecution](c, &staticAuth{tokens: []string{"t"}}, PathExecutions)

	e, err := execs.Get(context.Background(), id.String())
	require.NoError(t, err)
	require.Equal(t, model.ExecutionInProgress, e.Status)

	e.Status = model.ExecutionCompleted
	saved, err := execs.Update(context.Background(), id.String(), e)
	require.NoError(t, err)
	require.Equal(t, "stored", saved.Notes)
	require.Equal(t, model.ExecutionCompleted, saved.Status)
}

func TestCurrentUser(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathMe, r.URL.Path)
		require.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id":"00000000-0000-0000-0000-000000000002","name":"Bo"}`)
	})
	u, err := c.CurrentUser(context.Background(), &staticAuth{tokens: []string{"t"}})
	require.NoError(t, err)
	require.Equal(t, "Bo", u.Name)
}
