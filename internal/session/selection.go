package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/fitsync/internal/errs"
	"github.com/and161185/fitsync/internal/model"
	"github.com/and161185/fitsync/internal/vault"
)

// KeySelection is the vault key of the unit selection.
const KeySelection = "session_selection"

// SelectionStore keeps the (selected_unit_id, selected_unit_name) pair.
type SelectionStore struct{ v vault.Storage }

// NewSelectionStore constructs a store over v.
func NewSelectionStore(v vault.Storage) *SelectionStore { return &SelectionStore{v: v} }

// Set replaces the selection.
func (s *SelectionStore) Set(ctx context.Context, unitID, unitName string) error {
	if unitID == "" {
		return errors.New("selection: empty unit id")
	}
	b, err := json.Marshal(model.UnitSelection{ID: unitID, Name: unitName})
	if err != nil {
		return err
	}
	if err := s.v.Put(ctx, KeySelection, b); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	return nil
}

// Get returns the selection or nil when none is stored.
func (s *SelectionStore) Get(ctx context.Context) (*model.UnitSelection, error) {
	b, err := s.v.Get(ctx, KeySelection)
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrDecode):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("selection: %w", err)
	}
	var sel model.UnitSelection
	if json.Unmarshal(b, &sel) != nil || sel.ID == "" {
		return nil, nil
	}
	return &sel, nil
}

// Clear drops the selection.
func (s *SelectionStore) Clear(ctx context.Context) error {
	return s.v.Delete(ctx, KeySelection)
}
