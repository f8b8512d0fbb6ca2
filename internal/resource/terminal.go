package resource

import (
	"context"
	"time"

	"github.com/google/uuid"

	"madrasah/internal/optimistic"
	"madrasah/internal/validation"
)

// Terminal is the resource library screen. Admin and teacher views share
// it; the server decides what each role may change.
type Terminal struct {
	mut   *optimistic.Mutator[string, Record]
	now   func() time.Time
	newID func() string
}

func NewTerminal(recs []Record, d optimistic.Dispatcher, opts ...optimistic.Option) *Terminal {
	return &Terminal{
		mut:   optimistic.NewMutator(Entity, optimistic.NewMirror(recs, recordKey), d, opts...),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (t *Terminal) Records() []Record { return t.mut.Mirror().Items() }

func (t *Terminal) Record(id string) (Record, bool) { return t.mut.Mirror().Get(id) }

// AddLink registers an external link. The record is listed at once under
// an id chosen here.
func (t *Terminal) AddLink(ctx context.Context, title, url, classID string, public bool) optimistic.Result {
	in := CreateInput{ID: t.newID(), Title: title, Type: TypeLink, FileURL: url, IsPublic: public, ClassID: classID}
	now := t.now()
	rec := Record{
		ID:        in.ID,
		Title:     title,
		Type:      TypeLink,
		FileURL:   url,
		IsPublic:  public,
		ClassID:   classID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	mut := optimistic.Mutation[string, Record]{
		Action:  ActionCreate,
		Data:    in,
		Changes: []optimistic.Change[string, Record]{t.mut.Put(rec)},
		Success: "Resource added",
		Failure: "Failed to add resource",
	}
	if err := validation.Struct(in); err != nil {
		return t.mut.Reject(mut, err)
	}
	return t.mut.Apply(ctx, mut)
}

// TogglePublic flips the record's visibility.
func (t *Terminal) TogglePublic(ctx context.Context, id string) optimistic.Result {
	rec, ok := t.Record(id)
	if !ok {
		return t.mut.Reject(optimistic.Mutation[string, Record]{Action: ActionTogglePublic, Failure: "Failed to update resource"}, ErrNotFound)
	}
	in := TogglePublicInput{ID: id, IsPublic: !rec.IsPublic, ExpectedVersion: rec.Version}
	msg := "Resource is now private"
	if in.IsPublic {
		msg = "Resource is now public"
	}
	return t.mut.Apply(ctx, optimistic.Mutation[string, Record]{
		Action:  ActionTogglePublic,
		Data:    in,
		Changes: []optimistic.Change[string, Record]{t.mut.Put(t.bump(rec, func(r *Record) { r.IsPublic = in.IsPublic }))},
		Success: msg,
		Failure: "Failed to update resource",
	})
}

// Rename changes the record's title.
func (t *Terminal) Rename(ctx context.Context, id, title string) optimistic.Result {
	mut := optimistic.Mutation[string, Record]{Action: ActionRename, Success: "Resource renamed", Failure: "Failed to rename resource"}
	rec, ok := t.Record(id)
	if !ok {
		return t.mut.Reject(mut, ErrNotFound)
	}
	in := RenameInput{ID: id, Title: title, ExpectedVersion: rec.Version}
	mut.Data = in
	if err := validation.Struct(in); err != nil {
		return t.mut.Reject(mut, err)
	}
	mut.Changes = []optimistic.Change[string, Record]{t.mut.Put(t.bump(rec, func(r *Record) { r.Title = title }))}
	return t.mut.Apply(ctx, mut)
}

// Delete removes the record from the list at once; a rejected delete puts
// it back where it was.
func (t *Terminal) Delete(ctx context.Context, id string) optimistic.Result {
	mut := optimistic.Mutation[string, Record]{Action: ActionDelete, Success: "Resource deleted", Failure: "Failed to delete resource"}
	rec, ok := t.Record(id)
	if !ok {
		return t.mut.Reject(mut, ErrNotFound)
	}
	mut.Data = DeleteInput{ID: id, ExpectedVersion: rec.Version}
	mut.Changes = []optimistic.Change[string, Record]{t.mut.Delete(id)}
	return t.mut.Apply(ctx, mut)
}

// bump applies fn to a copy of rec as the server will: one version up.
func (t *Terminal) bump(rec Record, fn func(*Record)) Record {
	fn(&rec)
	rec.Version++
	rec.UpdatedAt = t.now()
	return rec
}
