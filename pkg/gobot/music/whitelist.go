package music

import (
	"context"
	"errors"
	"slices"

	"github.com/jholhewres/gobot/pkg/gobot/store"
)

// whitelistKey is the single record holding the whitelisted ids.
const whitelistKey = "whitelist"

// errUnchanged aborts an update that would not modify the list.
var errUnchanged = errors.New("whitelist unchanged")

// Whitelist is the persisted set of users allowed to control playback.
type Whitelist struct {
	store store.Store
}

// NewWhitelist returns a whitelist stored in st.
func NewWhitelist(st store.Store) *Whitelist {
	return &Whitelist{store: st}
}

// Add inserts the ids that are not yet present.
func (w *Whitelist) Add(ctx context.Context, ids ...string) error {
	return w.update(ctx, func(list []string) []string {
		for _, id := range ids {
			if !slices.Contains(list, id) {
				list = append(list, id)
			}
		}
		return list
	})
}

// Remove drops an id. Removing an absent id is a no-op.
func (w *Whitelist) Remove(ctx context.Context, id string) error {
	return w.update(ctx, func(list []string) []string {
		return slices.DeleteFunc(list, func(s string) bool { return s == id })
	})
}

func (w *Whitelist) update(ctx context.Context, fn func([]string) []string) error {
	err := store.UpdateJSON(ctx, w.store, whitelistKey, func(list *[]string) error {
		before := slices.Clone(*list)
		next := fn(*list)
		slices.Sort(next)
		if slices.Equal(before, next) {
			return errUnchanged
		}
		if next == nil {
			next = []string{}
		}
		*list = next
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// Contains reports whether id is whitelisted.
func (w *Whitelist) Contains(ctx context.Context, id string) (bool, error) {
	list, err := w.List(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(list, id), nil
}

// List returns the whitelisted ids, sorted.
func (w *Whitelist) List(ctx context.Context) ([]string, error) {
	var list []string
	if _, err := w.store.Get(ctx, whitelistKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}
