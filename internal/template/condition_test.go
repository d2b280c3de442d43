package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/uiruntime/internal/model"
)

func TestVisible(t *testing.T) {
	in := Binding{Session: &model.Session{User: model.Record{"role": "admin"}}}
	out := Binding{}

	tests := []struct {
		name   string
		showIf string
		b      Binding
		want   bool
	}{
		{"empty", "", out, true},
		{"logged in", "session.isLoggedIn", in, true},
		{"logged out", "session.isLoggedIn", out, false},
		{"logged out flag", "session.isLoggedOut", out, true},
		{"user field", `session.user.role == "admin"`, in, true},
		{"form value", `form.agree == true`, Binding{Form: map[string]any{"agree": true}}, true},
		{"item value", `item.done`, Binding{Item: model.Record{"done": false}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Visible(tt.showIf, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVisible_FailsOpen(t *testing.T) {
	got, err := Visible("session.isLoggedIn &&", Binding{})
	assert.Error(t, err)
	assert.True(t, got)

	got, err = Visible(`form.name`, Binding{Form: map[string]any{"name": "x"}})
	assert.Error(t, err)
	assert.True(t, got)
}

func TestCompileCondition(t *testing.T) {
	assert.NoError(t, CompileCondition("session.isLoggedIn && form.x != nil"))
	assert.Error(t, CompileCondition("((("))
}
