package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/uiruntime/internal/model"
	"github.com/and161185/uiruntime/internal/template"
)

// formValue reads the form value for a user-table column: through the action's field mapping
// when present, else from the form entry named like the column.
func formValue(form FormState, fields map[string]string, column string) string {
	src, ok := fields[column]
	if !ok {
		src = column
	}
	return template.Format(form[src])
}

// postLoginScreen falls back to the initial screen when unset.
func (d *Dispatcher) postLoginScreen() string {
	if s := d.app.Auth().PostLoginScreen; s != "" {
		return s
	}
	return d.app.InitialScreen
}

// sessionFor builds a session from a user record without its credential column.
func (d *Dispatcher) sessionFor(user model.Record) *model.Session {
	u := user.Clone()
	delete(u, d.app.Auth().PasswordField)
	return &model.Session{User: u}
}

func (d *Dispatcher) findUser(st *State, email string) (model.Record, bool) {
	ac := d.app.Auth()
	return st.Records.Find(ac.UserTable, func(r model.Record) bool {
		return template.Format(r[ac.EmailField]) == email
	})
}

func (d *Dispatcher) login(ctx context.Context, st *State, v model.Login, next func(model.Action)) {
	ac := d.app.Auth()
	if !ac.Enabled {
		d.log.Warn("auth:login with authentication disabled")
		next(v.OnError)
		return
	}
	email := formValue(st.Form, v.Fields, ac.EmailField)
	password := formValue(st.Form, v.Fields, ac.PasswordField)
	if email == "" {
		next(v.OnError)
		return
	}

	if d.limiter != nil {
		allowed, _, err := d.limiter.Allow(ctx, email, d.scope)
		if err != nil {
			d.log.Warn("login limiter unavailable", zap.Error(err))
		} else if !allowed {
			d.log.Info("login rate limited")
			next(v.OnError)
			return
		}
	}

	user, ok := d.findUser(st, email)
	if !ok || !d.verifier.Verify(password, template.Format(user[ac.PasswordField])) {
		if d.limiter != nil {
			if _, _, err := d.limiter.Failure(ctx, email, d.scope); err != nil {
				d.log.Warn("login limiter failure record", zap.Error(err))
			}
		}
		next(v.OnError)
		return
	}
	if d.limiter != nil {
		if err := d.limiter.Success(ctx, email, d.scope); err != nil {
			d.log.Warn("login limiter success record", zap.Error(err))
		}
	}

	st.Session = d.sessionFor(user)
	st.Screen = d.postLoginScreen()
	st.Form = FormState{}
	next(v.OnSuccess)
}

func (d *Dispatcher) signup(st *State, v model.Signup, next func(model.Action)) {
	ac := d.app.Auth()
	if !ac.Enabled {
		d.log.Warn("auth:signup with authentication disabled")
		next(v.OnError)
		return
	}
	if !d.tableKnown(st, ac.UserTable) {
		d.log.Warn("signup into unknown user table", zap.String("table", ac.UserTable))
		next(v.OnError)
		return
	}
	email := formValue(st.Form, v.Fields, ac.EmailField)
	if email == "" {
		next(v.OnError)
		return
	}
	if _, exists := d.findUser(st, email); exists {
		next(v.OnError)
		return
	}

	rec := model.Record(payload(st.Form, v.Fields))
	rec[ac.EmailField] = email
	if password := formValue(st.Form, v.Fields, ac.PasswordField); password != "" {
		hashed, err := d.verifier.Hash(password)
		if err != nil {
			d.log.Warn("signup password hashing failed", zap.Error(err))
			next(v.OnError)
			return
		}
		rec[ac.PasswordField] = hashed
	}

	st.Records.EnsureTable(ac.UserTable)
	// the store may be shared with other instances of the app
	stored, inserted, err := st.Records.InsertUnless(ac.UserTable, rec, func(r model.Record) bool {
		return template.Format(r[ac.EmailField]) == email
	})
	if err != nil || !inserted {
		if err != nil {
			d.log.Warn("signup insert failed", zap.Error(err))
		}
		next(v.OnError)
		return
	}
	st.Session = d.sessionFor(stored)
	st.Screen = d.postLoginScreen()
	st.Form = FormState{}
	next(v.OnSuccess)
}
