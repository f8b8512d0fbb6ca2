package resource

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madrasah/internal/optimistic"
)

func local(svc *Service) optimistic.Dispatcher {
	return optimistic.DispatcherFunc(func(ctx context.Context, req optimistic.Request) error {
		var err error
		switch req.Action {
		case ActionCreate:
			_, err = svc.Create(ctx, req.Data.(CreateInput), "teacher-1")
		case ActionTogglePublic:
			_, err = svc.TogglePublic(ctx, req.Data.(TogglePublicInput))
		case ActionRename:
			_, err = svc.Rename(ctx, req.Data.(RenameInput))
		case ActionDelete:
			err = svc.Delete(ctx, req.Data.(DeleteInput))
		default:
			err = fmt.Errorf("unknown action %q", req.Action)
		}
		return err
	})
}

func library(t *testing.T) (*Service, *Terminal) {
	t.Helper()
	svc := NewService(NewMemoryRepository(), nil, nil)
	for _, title := range []string{"aqidah", "akhlaq", "hadith"} {
		seed(t, svc, title, false)
	}
	recs, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	return svc, NewTerminal(recs, local(svc))
}

func TestToggleTwiceRestoresVisibility(t *testing.T) {
	svc, term := library(t)
	id := term.Records()[1].ID

	require.True(t, term.TogglePublic(context.Background(), id).OK())
	rec, _ := term.Record(id)
	assert.True(t, rec.IsPublic)

	require.True(t, term.TogglePublic(context.Background(), id).OK())
	rec, _ = term.Record(id)
	assert.False(t, rec.IsPublic)
	assert.Equal(t, 3, rec.Version)

	stored, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, rec.IsPublic, stored.IsPublic)
	assert.Equal(t, rec.Version, stored.Version)
}

func TestToggleLeavesOtherRecordsAlone(t *testing.T) {
	_, term := library(t)
	before := term.Records()

	require.True(t, term.TogglePublic(context.Background(), before[0].ID).OK())

	after := term.Records()
	assert.Equal(t, before[1:], after[1:])
}

func TestToggleConflictReverts(t *testing.T) {
	svc, term := library(t)
	id := term.Records()[0].ID
	// another screen renames first
	_, err := svc.Rename(context.Background(), RenameInput{ID: id, Title: "Aqidah 101"})
	require.NoError(t, err)

	res := term.TogglePublic(context.Background(), id)

	assert.Equal(t, optimistic.KindConflict, res.Kind())
	rec, _ := term.Record(id)
	assert.False(t, rec.IsPublic)
	assert.Equal(t, 1, rec.Version)
}

func TestDeleteRejectedRestoresPosition(t *testing.T) {
	fail := optimistic.DispatcherFunc(func(context.Context, optimistic.Request) error {
		return optimistic.NewError(optimistic.KindForbidden, "only admins can delete shared resources")
	})
	_, term := library(t)
	recs := term.Records()
	term = NewTerminal(recs, fail)

	res := term.Delete(context.Background(), recs[1].ID)

	assert.Equal(t, optimistic.KindForbidden, res.Kind())
	assert.Equal(t, recs, term.Records())
}

func TestDeleteRemovesRecord(t *testing.T) {
	svc, term := library(t)
	id := term.Records()[2].ID

	require.True(t, term.Delete(context.Background(), id).OK())

	assert.Len(t, term.Records(), 2)
	_, err := svc.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddLinkAndRename(t *testing.T) {
	svc, term := library(t)

	res := term.AddLink(context.Background(), "Tafsir playlist", "https://example.com/tafsir", "c1", true)
	require.True(t, res.OK())
	recs := term.Records()
	require.Len(t, recs, 4)
	added := recs[3]
	assert.Equal(t, TypeLink, added.Type)

	require.True(t, term.Rename(context.Background(), added.ID, "Tafsir Juz 30").OK())
	stored, err := svc.Get(context.Background(), added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tafsir Juz 30", stored.Title)
	assert.Equal(t, 2, stored.Version)
}

func TestRenameEmptyTitleNeverDispatches(t *testing.T) {
	_, term := library(t)
	id := term.Records()[0].ID

	res := term.Rename(context.Background(), id, "")

	assert.Equal(t, optimistic.KindValidation, res.Kind())
	rec, _ := term.Record(id)
	assert.Equal(t, "aqidah", rec.Title)
}
