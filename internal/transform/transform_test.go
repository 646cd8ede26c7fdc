package transform

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kalambet/moviesync/internal/source"
)

const (
	titleA = "3d825f60-9fff-4dfe-b294-1a45fa1e115d"
	titleB = "0312ed51-8833-413f-bff5-0e139c11264a"
	actor1 = "5b4bf1bc-3397-4e83-9b17-8b10c6544ed1"
)

func ptr[T any](v T) *T { return &v }

func TestDefaultCoercion(t *testing.T) {
	res := New(nil).Transform(context.Background(), "movies", []source.ChangeRecord{{
		ID:        titleA,
		Title:     ptr("Untitled"),
		UpdatedAt: "2023-01-01T10:00:00",
	}})

	require.Empty(t, res.Skipped)
	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	require.Zero(t, doc.IMDBRating)
	require.Equal(t, "", doc.Description)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": "3d825f60-9fff-4dfe-b294-1a45fa1e115d",
		"title": "Untitled",
		"imdb_rating": 0,
		"description": "",
		"director": [],
		"genre": [],
		"actors_names": [],
		"writers_names": [],
		"actors": [],
		"writers": []
	}`, string(raw))
}

func TestFieldsCarriedOver(t *testing.T) {
	res := New(nil).Transform(context.Background(), "movies", []source.ChangeRecord{{
		ID:          titleA,
		Title:       ptr("Star Wars"),
		Description: ptr("space"),
		Rating:      ptr(8.6),
		UpdatedAt:   "2023-01-01T10:00:00",
		Actors:      []source.Person{{ID: actor1, Name: "Mark Hamill"}},
		ActorsNames: []string{"Mark Hamill"},
		Genres:      []string{"Sci-Fi"},
		Directors:   []string{"George Lucas"},
	}})

	require.Len(t, res.Documents, 1)
	doc := res.Documents[0]
	require.Equal(t, 8.6, doc.IMDBRating)
	require.Equal(t, "space", doc.Description)
	require.Equal(t, []Person{{ID: actor1, Name: "Mark Hamill"}}, doc.Actors)
	require.Equal(t, []string{"Sci-Fi"}, doc.Genre)
	require.Equal(t, []string{"George Lucas"}, doc.Director)
}

func TestInvalidRecordsSkipped(t *testing.T) {
	recs := []source.ChangeRecord{
		{ID: "not-a-uuid", Title: ptr("bad id"), UpdatedAt: "2023-01-03T00:00:00"},
		{ID: titleA, Title: ptr("ok"), UpdatedAt: "2023-01-01T00:00:00"},
		{ID: titleB, UpdatedAt: "2023-01-02T00:00:00"},
	}

	res := New(nil).Transform(context.Background(), "movies", recs)

	require.Len(t, res.Documents, 1)
	require.Equal(t, titleA, res.Documents[0].ID)
	require.Len(t, res.Skipped, 2)
	require.Equal(t, "not-a-uuid", res.Skipped[0].ID)
	require.ErrorIs(t, res.Skipped[1].Reason, errMissingTitle)

	require.Equal(t, "2023-01-03T00:00:00", res.MaxUpdatedAt, "skipped records still move the batch max")
}

func TestInvalidPersonDroppedTitleKept(t *testing.T) {
	recs := []source.ChangeRecord{
		{
			ID: titleA, Title: ptr("nameless actor"), UpdatedAt: "2023-01-01T00:00:00",
			Actors:      []source.Person{{ID: actor1, Name: ""}},
			ActorsNames: []string{""},
		},
		{
			ID: titleB, Title: ptr("bad writer id"), UpdatedAt: "2023-01-01T00:00:00",
			Writers:      []source.Person{{ID: "nope", Name: "X"}, {ID: actor1, Name: "Kept"}},
			WritersNames: []string{"Kept", "X"},
		},
	}

	res := New(nil).Transform(context.Background(), "movies", recs)

	require.Empty(t, res.Skipped)
	require.Len(t, res.Documents, 2)
	require.Empty(t, res.Documents[0].Actors)
	require.NotNil(t, res.Documents[0].Actors)
	require.Empty(t, res.Documents[0].ActorsNames)
	require.Equal(t, []Person{{ID: actor1, Name: "Kept"}}, res.Documents[1].Writers)
	require.Equal(t, []string{"Kept", "X"}, res.Documents[1].WritersNames)
}

func TestMaxUpdatedAtComparesInstants(t *testing.T) {
	res := New(nil).Transform(context.Background(), "movies", []source.ChangeRecord{
		{ID: titleA, Title: ptr("a"), UpdatedAt: "2023-01-01T10:00:00.5Z"},
		{ID: titleB, Title: ptr("b"), UpdatedAt: "2023-01-01T10:00:00Z"},
	})
	require.Equal(t, "2023-01-01T10:00:00.5Z", res.MaxUpdatedAt)
}

func TestEmptyBatch(t *testing.T) {
	res := New(nil).Transform(context.Background(), "movies", nil)
	require.Empty(t, res.Documents)
	require.Empty(t, res.MaxUpdatedAt)

	n := 0
	for range res.Actions() {
		n++
	}
	require.Zero(t, n)
}

func TestActions(t *testing.T) {
	res := New(nil).Transform(context.Background(), "movies", []source.ChangeRecord{
		{ID: titleA, Title: ptr("a"), UpdatedAt: "2023-01-01"},
		{ID: titleB, Title: ptr("b"), UpdatedAt: "2023-01-02"},
	})

	var ids []string
	for a := range res.Actions() {
		require.Equal(t, "movies", a.Index)
		require.IsType(t, &Document{}, a.Body)
		ids = append(ids, a.ID)
	}
	require.Equal(t, []string{titleA, titleB}, ids)

	// Early break stops the sequence.
	for range res.Actions() {
		break
	}
}

func TestCanonicalID(t *testing.T) {
	res := New(nil).Transform(context.Background(), "movies", []source.ChangeRecord{
		{ID: "3D825F60-9FFF-4DFE-B294-1A45FA1E115D", Title: ptr("a"), UpdatedAt: "2023-01-01"},
	})
	require.Len(t, res.Documents, 1)
	require.Equal(t, titleA, res.Documents[0].ID)
}
