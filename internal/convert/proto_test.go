package convert

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/runtime"
	"github.com/and161185/uiruntime/internal/schema"
	"github.com/and161185/uiruntime/internal/service"
)

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestToStruct_RejectsNonObject(t *testing.T) {
	t.Parallel()

	if _, err := ToStruct([]int{1, 2}); err == nil {
		t.Fatalf("array must not convert to a struct")
	}
	if _, err := ToStruct(func() {}); err == nil {
		t.Fatalf("unencodable value must fail")
	}
}

func TestFromStruct_Nil(t *testing.T) {
	t.Parallel()

	var req SetFormRequest
	if err := FromStruct(nil, &req); err != nil {
		t.Fatalf("FromStruct(nil): %v", err)
	}
	if req.Form != nil {
		t.Fatalf("want empty request, got %+v", req)
	}
}

func TestDefinitionText(t *testing.T) {
	t.Parallel()

	obj := json.RawMessage(`{"initialScreen":"home"}`)
	if got := string(DefinitionText(obj)); got != `{"initialScreen":"home"}` {
		t.Fatalf("object passthrough: %s", got)
	}
	str := json.RawMessage(`"{\"initialScreen\": "`)
	if got := string(DefinitionText(str)); got != `{"initialScreen": ` {
		t.Fatalf("string unquote: %s", got)
	}
}

func TestDispatchRequest_FromStruct(t *testing.T) {
	t.Parallel()

	s := mustStruct(t, map[string]any{
		"action": map[string]any{"type": "navigate", "target": "detail"},
		"item":   map[string]any{"id": "t1", "qty": 2},
	})
	var req DispatchRequest
	if err := FromStruct(s, &req); err != nil {
		t.Fatalf("FromStruct: %v", err)
	}
	a, issues := schema.ParseAction(req.Action)
	if len(issues) != 0 || a == nil {
		t.Fatalf("ParseAction: %v", issues)
	}
	if a.Kind() != model.ActionNavigate {
		t.Fatalf("kind: %s", a.Kind())
	}
	if req.Item["id"] != "t1" || req.Item["qty"] != float64(2) {
		t.Fatalf("item: %+v", req.Item)
	}
}

func TestSetFormRequest_NullRemoves(t *testing.T) {
	t.Parallel()

	s := mustStruct(t, map[string]any{"form": map[string]any{"a": "x", "b": nil}})
	var req SetFormRequest
	if err := FromStruct(s, &req); err != nil {
		t.Fatalf("FromStruct: %v", err)
	}
	v, ok := req.Form["b"]
	if !ok || v != nil {
		t.Fatalf("null must survive as a nil value, got %v (present=%v)", v, ok)
	}
}

func TestFromProtoOpen(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV4())
	got, err := FromProtoOpen(mustStruct(t, map[string]any{"appId": id.String()}))
	if err != nil || got != id {
		t.Fatalf("FromProtoOpen: %v %v", got, err)
	}
	if _, err := FromProtoOpen(mustStruct(t, map[string]any{"appId": "nope"})); err == nil ||
		!strings.Contains(err.Error(), "bad app id") {
		t.Fatalf("want bad app id, got %v", err)
	}
}

func TestToProtoPublish(t *testing.T) {
	t.Parallel()

	rep := service.Report{
		Issues:   []schema.Issue{{Path: "screens", Message: "required", Severity: schema.SeverityError}},
		Warnings: []schema.Issue{},
	}
	s, err := ToProtoPublish(uuid.Nil, rep)
	if err != nil {
		t.Fatalf("ToProtoPublish: %v", err)
	}
	if _, ok := s.GetFields()["appId"]; ok {
		t.Fatalf("nil id must be omitted")
	}
	issues := s.GetFields()["report"].GetStructValue().GetFields()["issues"].GetListValue().GetValues()
	if len(issues) != 1 || issues[0].GetStructValue().GetFields()["path"].GetStringValue() != "screens" {
		t.Fatalf("issues: %v", issues)
	}

	id := uuid.Must(uuid.NewV4())
	s, err = ToProtoPublish(id, service.Report{})
	if err != nil {
		t.Fatalf("ToProtoPublish: %v", err)
	}
	if s.GetFields()["appId"].GetStringValue() != id.String() {
		t.Fatalf("appId mismatch")
	}
}

func TestToProtoOpened(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV4())
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := ToProtoOpened(service.Opened{
		InstanceID: id,
		Tokens:     model.Tokens{AccessToken: "tok", ExpiresAt: exp},
		View: runtime.View{
			Screen: "home",
			Kind:   runtime.KindScreen,
			Nodes: []runtime.Node{{
				ID: "title", Type: "text", Props: map[string]any{"text": "Hi"},
			}},
			Popups: []runtime.PopupView{},
			Form:   runtime.FormState{"q": "x"},
		},
	})
	if err != nil {
		t.Fatalf("ToProtoOpened: %v", err)
	}
	var back OpenResponse
	if err := FromStruct(s, &back); err != nil {
		t.Fatalf("FromStruct: %v", err)
	}
	if back.InstanceID != id.String() || back.AccessToken != "tok" || !back.ExpiresAt.Equal(exp) {
		t.Fatalf("header mismatch: %+v", back)
	}
	if back.View.Screen != "home" || back.View.Kind != runtime.KindScreen {
		t.Fatalf("view mismatch: %+v", back.View)
	}
	if len(back.View.Nodes) != 1 || back.View.Nodes[0].Props["text"] != "Hi" {
		t.Fatalf("nodes mismatch: %+v", back.View.Nodes)
	}
	if back.View.Form["q"] != "x" {
		t.Fatalf("form mismatch: %+v", back.View.Form)
	}
}
