package runtime

import "github.com/and161185/uiruntime/internal/model"

// ResolutionKind classifies the outcome of screen resolution.
type ResolutionKind string

const (
	KindScreen     ResolutionKind = "screen"
	KindAuthLogin  ResolutionKind = "auth:login"
	KindAuthSignup ResolutionKind = "auth:signup"
	KindUnresolved ResolutionKind = "unresolved"
)

// Resolution is the actually-visible screen. Screen is set only for KindScreen.
// RedirectedFrom holds the guarded screen id when the auth guard redirected.
type Resolution struct {
	Kind           ResolutionKind
	ScreenID       string
	Screen         *model.Screen
	RedirectedFrom string
}

// ScreenResolver applies screen lookup and the auth guard.
type ScreenResolver struct {
	app *model.App
}

// NewScreenResolver constructs a resolver over app.
func NewScreenResolver(app *model.App) *ScreenResolver {
	return &ScreenResolver{app: app}
}

// Resolve returns the visible screen for id. A guarded screen requested without a session
// redirects exactly once to the auth redirect screen; the target is not re-checked.
func (r *ScreenResolver) Resolve(id string, sess *model.Session) Resolution {
	res := r.lookup(id)
	if res.Kind != KindScreen || !res.Screen.RequiresAuth || sess.LoggedIn() {
		return res
	}
	target := r.app.Auth().AuthRedirectScreen
	if target == "" {
		target = model.ScreenAuthLogin
	}
	red := r.lookup(target)
	red.RedirectedFrom = id
	return red
}

func (r *ScreenResolver) lookup(id string) Resolution {
	if model.IsReservedScreen(id) {
		if id == model.ScreenAuthSignup {
			return Resolution{Kind: KindAuthSignup, ScreenID: id}
		}
		return Resolution{Kind: KindAuthLogin, ScreenID: id}
	}
	if s, ok := r.app.Screen(id); ok {
		return Resolution{Kind: KindScreen, ScreenID: id, Screen: s}
	}
	return Resolution{Kind: KindUnresolved, ScreenID: id}
}
