package source

import (
	"cmp"
	"slices"
)

// Person roles recognised in person_film_work.role.
const (
	RoleActor    = "actor"
	RoleWriter   = "writer"
	RoleDirector = "director"
)

// Person is an actor or writer attached to a title.
type Person struct {
	ID   string
	Name string
}

// ChangeRecord is one title as extracted after a change to the title itself
// or to a genre or person linked to it. Nullable title columns are pointers.
type ChangeRecord struct {
	ID          string
	Title       *string
	Description *string
	Rating      *float64
	Type        string
	Certificate string
	CreatedAt   string
	// UpdatedAt is the change time that put the title in the working set.
	UpdatedAt string

	Actors       []Person
	Writers      []Person
	ActorsNames  []string
	WritersNames []string
	Directors    []string
	Genres       []string
}

// aggregate collapses the join fan-out of one title into a ChangeRecord.
type aggregate struct {
	rec ChangeRecord

	actors    map[string]string
	writers   map[string]string
	actorsN   map[string]struct{}
	writersN  map[string]struct{}
	directors map[string]struct{}
	genres    map[string]struct{}
}

func newAggregate(rec ChangeRecord) *aggregate {
	return &aggregate{
		rec:       rec,
		actors:    map[string]string{},
		writers:   map[string]string{},
		actorsN:   map[string]struct{}{},
		writersN:  map[string]struct{}{},
		directors: map[string]struct{}{},
		genres:    map[string]struct{}{},
	}
}

func (a *aggregate) addPerson(role, id, name string) {
	if id == "" {
		return
	}
	switch role {
	case RoleActor:
		a.actors[id] = name
		a.actorsN[name] = struct{}{}
	case RoleWriter:
		a.writers[id] = name
		a.writersN[name] = struct{}{}
	case RoleDirector:
		a.directors[name] = struct{}{}
	}
}

func (a *aggregate) addGenre(name string) {
	if name != "" {
		a.genres[name] = struct{}{}
	}
}

func (a *aggregate) record() ChangeRecord {
	rec := a.rec
	rec.Actors = people(a.actors)
	rec.Writers = people(a.writers)
	rec.ActorsNames = names(a.actorsN)
	rec.WritersNames = names(a.writersN)
	rec.Directors = names(a.directors)
	rec.Genres = names(a.genres)
	return rec
}

func people(m map[string]string) []Person {
	out := make([]Person, 0, len(m))
	for id, name := range m {
		out = append(out, Person{ID: id, Name: name})
	}
	slices.SortFunc(out, func(x, y Person) int {
		return cmp.Or(cmp.Compare(x.Name, y.Name), cmp.Compare(x.ID, y.ID))
	})
	return out
}

func names(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
