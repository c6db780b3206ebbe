package store

import (
	"context"
	"errors"
	"time"
)

// LocalState gives typed access to the per-user keys the dashboard keeps
// between sessions.
type LocalState struct {
	s   Store
	now func() time.Time
}

// NewLocalState wraps s.
func NewLocalState(s Store) *LocalState {
	return &LocalState{s: s, now: time.Now}
}

// Email returns the signed-in user's email, or "".
func (l *LocalState) Email(ctx context.Context) string { return l.str(ctx, KeyUserEmail) }

// SetEmail stores the signed-in user's email.
func (l *LocalState) SetEmail(ctx context.Context, email string) error {
	return PutJSON(ctx, l.s, KeyUserEmail, email, l.now())
}

// UserName returns the display name, or "".
func (l *LocalState) UserName(ctx context.Context) string { return l.str(ctx, KeyUserName) }

// SetUserName stores the display name.
func (l *LocalState) SetUserName(ctx context.Context, name string) error {
	return PutJSON(ctx, l.s, KeyUserName, name, l.now())
}

// Theme returns "light", "dark" or "" when unset.
func (l *LocalState) Theme(ctx context.Context) string { return l.str(ctx, KeyTheme) }

// SetTheme stores the theme preference.
func (l *LocalState) SetTheme(ctx context.Context, theme string) error {
	return PutJSON(ctx, l.s, KeyTheme, theme, l.now())
}

// InitialFavorites returns the favorites cached at last sign-in.
func (l *LocalState) InitialFavorites(ctx context.Context) []string {
	v, _, ok, err := GetJSON[[]string](ctx, l.s, KeyInitialFavorites)
	if err != nil || !ok {
		return nil
	}
	return v
}

// SetInitialFavorites caches favorites for the next session.
func (l *LocalState) SetInitialFavorites(ctx context.Context, favs []string) error {
	return PutJSON(ctx, l.s, KeyInitialFavorites, favs, l.now())
}

// Clear forgets the user (sign-out). Theme survives.
func (l *LocalState) Clear(ctx context.Context) error {
	var errs []error
	for _, k := range []string{KeyUserEmail, KeyUserName, KeyInitialFavorites} {
		errs = append(errs, l.s.Delete(ctx, k))
	}
	return errors.Join(errs...)
}

func (l *LocalState) str(ctx context.Context, key string) string {
	v, _, ok, err := GetJSON[string](ctx, l.s, key)
	if err != nil || !ok {
		return ""
	}
	return v
}
