package runtime

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/schema"
	"github.com/and161185/uiruntime/internal/store"
	"github.com/and161185/uiruntime/internal/submit"
)

const tasksApp = `{
  "version": "1.0",
  "app": {
    "designTokens": {"primaryColor": "#3366ff"},
    "databaseSchema": {
      "users": {"fields": {"email": "string", "password": "string", "name": "string"}},
      "tasks": {"fields": {"title": {"type": "string"}}}
    },
    "authentication": {
      "enabled": true, "userTable": "users", "emailField": "email",
      "passwordField": "password", "postLoginScreen": "home", "authRedirectScreen": "auth:login"
    }
  },
  "screens": {
    "home": {"title": "Home", "requiresAuth": true, "components": []},
    "public": {"title": "Public", "components": []},
    "guardedRedirect": {"requiresAuth": true, "components": []}
  },
  "initialScreen": "public"
}`

func mustApp(t *testing.T, text string) *model.App {
	t.Helper()
	app, issues := schema.Validate([]byte(text))
	require.Empty(t, issues)
	require.NotNil(t, app)
	return app
}

func seqIDs() store.IDGenerator {
	var mu sync.Mutex
	n := 100
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return strconv.Itoa(n)
	}
}

func newRuntime(t *testing.T, seed store.Snapshot, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithIDGenerator(seqIDs())}, opts...)
	rt, err := New(mustApp(t, tasksApp), seed, opts...)
	require.NoError(t, err)
	return rt
}

func usersSeed() store.Snapshot {
	return store.Snapshot{"users": {{"id": "1", "email": "a@b.com", "password": "x"}}}
}

var loginFields = map[string]string{"email": "emailInput", "password": "passwordInput"}

func TestLogin_MatchSetsSessionAndNavigates(t *testing.T) {
	rt := newRuntime(t, usersSeed())
	rt.SetFormState(map[string]any{"emailInput": "a@b.com", "passwordInput": "x"})

	rt.Dispatch(context.Background(), model.Login{Fields: loginFields})

	sess := rt.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "1", sess.User.ID())
	assert.Equal(t, "a@b.com", sess.User["email"])
	assert.NotContains(t, sess.User, "password")
	assert.Equal(t, "home", rt.ActiveScreen())
	assert.Empty(t, rt.FormState())
}

func TestLogin_FallsBackToAuthFieldNames(t *testing.T) {
	rt := newRuntime(t, usersSeed())
	rt.SetFormState(map[string]any{"email": "a@b.com", "password": "x"})

	rt.Dispatch(context.Background(), model.Login{Fields: map[string]string{}})

	require.NotNil(t, rt.Session())
}

func TestLogin_MismatchFiresOnErrorOnce(t *testing.T) {
	rt := newRuntime(t, usersSeed())
	rt.SetFormState(map[string]any{"emailInput": "a@b.com", "passwordInput": "nope"})

	rt.Dispatch(context.Background(), model.Login{
		Fields:  loginFields,
		OnError: model.Popup{Message: "Bad credentials"},
	})

	assert.Nil(t, rt.Session())
	assert.Equal(t, "public", rt.ActiveScreen())
	assert.Equal(t, "nope", rt.FormState()["passwordInput"])
	popups := rt.Popups()
	require.Len(t, popups, 1)
	assert.Equal(t, "Bad credentials", popups[0].Message)
}

func TestLogin_AuthDisabledFiresOnError(t *testing.T) {
	app := mustApp(t, `{"version":"1","app":{},"screens":{"a":{"components":[]}},"initialScreen":"a"}`)
	rt, err := New(app, nil)
	require.NoError(t, err)

	rt.Dispatch(context.Background(), model.Login{OnError: model.Navigate{Target: "failed"}})

	assert.Nil(t, rt.Session())
	assert.Equal(t, "failed", rt.ActiveScreen())
}

func TestLogin_HashedCredential(t *testing.T) {
	rt := newRuntime(t, nil)
	rt.SetFormState(map[string]any{"emailInput": "new@b.com", "passwordInput": "secret"})
	rt.Dispatch(context.Background(), model.Signup{Fields: loginFields})
	rt.Dispatch(context.Background(), model.Logout{})
	require.Nil(t, rt.Session())

	users := rt.Records()["users"]
	require.Len(t, users, 1)
	assert.NotEqual(t, "secret", users[0]["password"])

	rt.SetFormState(map[string]any{"emailInput": "new@b.com", "passwordInput": "secret"})
	rt.Dispatch(context.Background(), model.Login{Fields: loginFields})
	require.NotNil(t, rt.Session())
	assert.Equal(t, "new@b.com", rt.Session().User["email"])
}

func TestLogin_CraftedCostsDoNotPanic(t *testing.T) {
	seed := store.Snapshot{"users": {{
		"id": "1", "email": "a@b.com",
		"password": "$argon2id$v=19$m=8,t=0,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5",
	}}}
	rt := newRuntime(t, seed)
	rt.SetFormState(map[string]any{"email": "a@b.com", "password": "anything"})

	require.NotPanics(t, func() {
		rt.Dispatch(context.Background(), model.Login{OnError: model.Navigate{Target: "failed"}})
	})
	assert.Nil(t, rt.Session())
	assert.Equal(t, "failed", rt.ActiveScreen())
}

func TestSignup_DuplicateEmailRejected(t *testing.T) {
	rt := newRuntime(t, nil)
	fields := map[string]string{"email": "emailInput", "password": "passwordInput", "name": "nameInput"}

	rt.SetFormState(map[string]any{"emailInput": "dup@b.com", "passwordInput": "p", "nameInput": "Ann"})
	rt.Dispatch(context.Background(), model.Signup{Fields: fields})
	require.NotNil(t, rt.Session())
	assert.Equal(t, "Ann", rt.Session().User["name"])
	assert.Equal(t, "home", rt.ActiveScreen())
	before := rt.Records()

	rt.Dispatch(context.Background(), model.Logout{})
	rt.SetFormState(map[string]any{"emailInput": "dup@b.com", "passwordInput": "q"})
	errs := 0
	rt.Dispatch(context.Background(), model.Signup{
		Fields:  fields,
		OnError: model.Popup{Message: "exists"},
	})
	for _, p := range rt.Popups() {
		if p.Message == "exists" {
			errs++
		}
	}

	assert.Equal(t, 1, errs)
	assert.Equal(t, before, rt.Records())
	assert.Nil(t, rt.Session())
	assert.Equal(t, "q", rt.FormState()["passwordInput"])
}

func TestLogout_DefaultNavigatesInitial(t *testing.T) {
	rt := newRuntime(t, usersSeed(), WithSession(&model.Session{User: model.Record{"id": "1"}}), WithScreen("home"))

	rt.Dispatch(context.Background(), model.Logout{})

	assert.Nil(t, rt.Session())
	assert.Equal(t, "public", rt.ActiveScreen())
}

func TestLogout_OnSuccessInsteadOfInitial(t *testing.T) {
	rt := newRuntime(t, nil, WithSession(&model.Session{User: model.Record{"id": "1"}}), WithScreen("home"))

	rt.Dispatch(context.Background(), model.Logout{OnSuccess: model.Navigate{Target: "auth:login"}})

	assert.Equal(t, "auth:login", rt.ActiveScreen())
}

func TestSubmit_DatabaseAppendsAndClearsMappedFields(t *testing.T) {
	rt := newRuntime(t, nil)
	rt.SetFormState(map[string]any{"titleInput": "Buy milk", "other": "keep"})

	rt.Dispatch(context.Background(), model.Submit{
		Target: model.SubmitTargetDatabase,
		Table:  "tasks",
		Fields: map[string]string{"title": "titleInput"},
	})

	tasks := rt.Records()["tasks"]
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0]["title"])
	assert.Equal(t, "101", tasks[0].ID())
	form := rt.FormState()
	assert.NotContains(t, form, "titleInput")
	assert.Equal(t, "keep", form["other"])
}

func TestSubmit_UnknownTableRunsOnError(t *testing.T) {
	rt := newRuntime(t, nil)

	rt.Dispatch(context.Background(), model.Submit{
		Table:   "ghosts",
		Fields:  map[string]string{"a": "b"},
		OnError: model.Navigate{Target: "error"},
	})

	assert.NotContains(t, rt.Records(), "ghosts")
	assert.Equal(t, "error", rt.ActiveScreen())
}

func TestSubmit_SeededTableOutsideSchema(t *testing.T) {
	rt := newRuntime(t, store.Snapshot{"notes": {}})
	rt.SetFormState(map[string]any{"n": "hello"})

	rt.Dispatch(context.Background(), model.Submit{Table: "notes", Fields: map[string]string{"body": "n"}})

	require.Len(t, rt.Records()["notes"], 1)
}

func TestDeleteRecord_Idempotent(t *testing.T) {
	rt := newRuntime(t, store.Snapshot{"tasks": {{"id": "t1", "title": "a"}, {"id": "t2", "title": "b"}}})
	del := model.DeleteRecord{Table: "tasks", RecordID: "{{id}}", OnSuccess: model.Popup{Message: "deleted"}}

	rt.Dispatch(context.Background(), del, WithItem(model.Record{"id": "t1"}))
	rt.Dispatch(context.Background(), del, WithItem(model.Record{"id": "t1"}))
	rt.Dispatch(context.Background(), model.DeleteRecord{Table: "tasks", RecordID: "missing"})

	tasks := rt.Records()["tasks"]
	require.Len(t, tasks, 1)
	assert.Equal(t, "t2", tasks[0].ID())
	assert.Len(t, rt.Popups(), 1)
}

func TestDeleteRecord_NumericSeedID(t *testing.T) {
	rt := newRuntime(t, store.Snapshot{"tasks": {{"id": float64(7)}}})

	rt.Dispatch(context.Background(), model.DeleteRecord{Table: "tasks", RecordID: "7"})

	assert.Empty(t, rt.Records()["tasks"])
}

func TestNavigateAndGoBack(t *testing.T) {
	rt := newRuntime(t, nil)

	rt.Dispatch(context.Background(), model.Navigate{Target: "nowhere"})
	assert.Equal(t, KindUnresolved, rt.Current().Kind)

	rt.Dispatch(context.Background(), model.GoBack{})
	assert.Equal(t, "public", rt.ActiveScreen())
	assert.Equal(t, KindScreen, rt.Current().Kind)
}

func TestUnknownActionIsNoop(t *testing.T) {
	rt := newRuntime(t, usersSeed())
	before := rt.Records()

	require.NotPanics(t, func() {
		rt.Dispatch(context.Background(), model.Unknown{Type: "teleport"})
		rt.Dispatch(context.Background(), nil)
	})

	assert.Equal(t, before, rt.Records())
	assert.Equal(t, "public", rt.ActiveScreen())
}

func TestDispatch_DepthCapStopsChain(t *testing.T) {
	var a model.Action = model.Navigate{Target: "end"}
	for i := 0; i < 50; i++ {
		a = model.Logout{OnSuccess: a}
	}
	rt := newRuntime(t, nil, WithActionDepth(4))

	require.NotPanics(t, func() { rt.Dispatch(context.Background(), a) })

	assert.Equal(t, "public", rt.ActiveScreen())
}

func TestPopup_DefaultButtonAndPress(t *testing.T) {
	rt := newRuntime(t, nil, WithSession(&model.Session{User: model.Record{"id": "1", "email": "a@b.com"}}))

	rt.Dispatch(context.Background(), model.Popup{Title: "Hi", Message: "Hello {{session.user.email}}"})
	popups := rt.Popups()
	require.Len(t, popups, 1)
	assert.Equal(t, "Hello a@b.com", popups[0].Message)
	assert.Equal(t, "info", popups[0].Variant)
	require.Len(t, popups[0].Buttons, 1)
	assert.Equal(t, "OK", popups[0].Buttons[0].Label)

	require.NoError(t, rt.PressPopupButton(context.Background(), popups[0].ID, 0))
	assert.Empty(t, rt.Popups())
	assert.Equal(t, "public", rt.ActiveScreen())
}

func TestPopup_ButtonActionRunsAfterDismiss(t *testing.T) {
	rt := newRuntime(t, nil)
	rt.Dispatch(context.Background(), model.Popup{
		Message: "Go?",
		Buttons: []model.PopupButton{
			{Label: "No"},
			{Label: "Yes", Action: model.Navigate{Target: "home"}},
		},
	})
	p := rt.Popups()[0]

	err := rt.PressPopupButton(context.Background(), p.ID, 5)
	require.Error(t, err)
	require.NoError(t, rt.PressPopupButton(context.Background(), p.ID, 1))

	assert.Equal(t, "home", rt.ActiveScreen())
	assert.Error(t, rt.PressPopupButton(context.Background(), p.ID, 1))
}

type fakeSubmitter struct {
	mu    sync.Mutex
	err   error
	calls []map[string]any
}

var _ submit.Submitter = (*fakeSubmitter)(nil)

func (f *fakeSubmitter) Submit(_ context.Context, _ string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, payload)
	return f.err
}

func TestSubmit_RemoteSuccess(t *testing.T) {
	sub := &fakeSubmitter{}
	done := make(chan struct{}, 1)
	rt := newRuntime(t, nil, WithSubmitter(sub), WithAfterAsync(func() { done <- struct{}{} }))
	rt.SetFormState(map[string]any{"msg": "hi"})

	rt.Dispatch(context.Background(), model.Submit{
		Target:    "https://example.test/hook",
		Fields:    map[string]string{"message": "msg"},
		OnSuccess: model.Navigate{Target: "home"},
		OnError:   model.Navigate{Target: "error"},
	})
	rt.Wait()
	<-done

	require.Len(t, sub.calls, 1)
	assert.Equal(t, map[string]any{"message": "hi"}, sub.calls[0])
	assert.Equal(t, "home", rt.ActiveScreen())
	assert.NotContains(t, rt.FormState(), "msg")
	assert.Empty(t, rt.Records()["tasks"])
}

func TestSubmit_RemoteFailureKeepsForm(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("boom")}
	rt := newRuntime(t, nil, WithSubmitter(sub))
	rt.SetFormState(map[string]any{"msg": "hi"})

	rt.Dispatch(context.Background(), model.Submit{
		Target:  "https://example.test/hook",
		Fields:  map[string]string{"message": "msg"},
		OnError: model.Navigate{Target: "error"},
	})
	rt.Wait()

	assert.Equal(t, "error", rt.ActiveScreen())
	assert.Equal(t, "hi", rt.FormState()["msg"])
}

func TestSubmit_RemoteWithoutSubmitterFails(t *testing.T) {
	rt := newRuntime(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	rt.Dispatch(ctx, model.Submit{
		Target:  "https://example.test/hook",
		Fields:  map[string]string{},
		OnError: model.Navigate{Target: "error"},
	})
	cancel()
	rt.Wait()

	assert.Equal(t, "error", rt.ActiveScreen())
}

func TestSetFormState_MergeAndRemove(t *testing.T) {
	rt := newRuntime(t, nil)

	rt.SetFormState(map[string]any{"a": "1", "b": "2"})
	rt.SetFormState(map[string]any{"a": nil, "c": "3"})

	assert.Equal(t, FormState{"b": "2", "c": "3"}, rt.FormState())
}

func TestRecords_SnapshotIsolated(t *testing.T) {
	rt := newRuntime(t, store.Snapshot{"tasks": {{"id": "t1", "title": "a"}}})

	snap := rt.Records()
	snap["tasks"][0]["title"] = "mutated"

	assert.Equal(t, "a", rt.Records()["tasks"][0]["title"])
}

func TestResolveAndVisible(t *testing.T) {
	rt := newRuntime(t, nil)

	assert.Equal(t, "#3366ff", rt.Resolve("$primaryColor", nil))
	assert.Equal(t, "$missing", rt.Resolve("$missing", nil))
	assert.Equal(t, "", rt.Resolve("{{session.user.email}}", nil))

	c := &model.Component{ID: "c1", ShowIf: "session.isLoggedIn"}
	assert.False(t, rt.Visible(c, nil))
	assert.True(t, rt.Visible(&model.Component{ShowIf: "item.done == false"}, model.Record{"done": false}))
}
