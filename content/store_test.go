package content

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/briefing/errors"
	brieftest "github.com/teranos/briefing/internal/testing"
)

func seedTemplate(t *testing.T, store *Store) *Presentation {
	t.Helper()
	ctx := context.Background()

	p := &Presentation{ID: "T1", Name: "Support weekly", IsTemplate: true}
	require.NoError(t, store.CreatePresentation(ctx, p))

	bg := "https://cdn.example.com/bg.png"
	slides := []*Slide{
		{
			ID: "S2", PresentationID: "T1", Position: 1,
			Elements: []*Element{
				{ID: "E3", Kind: KindQuery, Title: "Top queues",
					DataSource: &DataSource{Query: "SELECT queue, n FROM q", Limit: 5}},
			},
		},
		{
			ID: "S1", PresentationID: "T1", Position: 0, BackgroundImage: &bg,
			Elements: []*Element{
				{ID: "E1", Kind: KindText, Text: "Hello", Style: map[string]string{"color": "#333"}},
				{ID: "E2", Kind: KindMetric, Title: "Open tickets",
					DataSource: &DataSource{Query: "SELECT COUNT(*) AS count FROM tickets"}},
			},
		},
	}
	for _, s := range slides {
		require.NoError(t, store.SaveSlide(ctx, s))
	}
	return p
}

func TestCreateAndGetPresentation(t *testing.T) {
	store := NewStore(brieftest.CreateTestDB(t))
	seedTemplate(t, store)

	p, err := store.GetPresentation(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "Support weekly", p.Name)
	assert.True(t, p.IsTemplate)
	assert.Equal(t, []string{"S1", "S2"}, p.SlideIDs, "slide ids follow position")
}

func TestGetPresentationMissing(t *testing.T) {
	store := NewStore(brieftest.CreateTestDB(t))

	_, err := store.GetPresentation(context.Background(), "P404")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrContentNotFound))
	assert.Equal(t, "presentation P404 not found", err.Error())
}

func TestGetTemplateRequiresTemplateFlag(t *testing.T) {
	store := NewStore(brieftest.CreateTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.CreatePresentation(ctx, &Presentation{ID: "P1", Name: "Board pack"}))

	_, err := store.GetTemplate(ctx, "P1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrContentNotFound))

	_, err = store.GetTemplate(ctx, "missing")
	assert.Equal(t, "template missing not found", err.Error())
}

func TestSlidesRoundTripElements(t *testing.T) {
	store := NewStore(brieftest.CreateTestDB(t))
	seedTemplate(t, store)

	slides, err := store.GetSlides(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, slides, 2)

	first := slides[0]
	assert.Equal(t, "S1", first.ID)
	require.NotNil(t, first.BackgroundImage)
	require.Len(t, first.Elements, 2)
	assert.Equal(t, "#333", first.Elements[0].Style["color"])
	assert.True(t, first.Elements[1].DataBound())
	assert.False(t, first.Elements[0].DataBound())

	assert.Equal(t, 5, slides[1].Elements[0].DataSource.Limit)
}

func TestSaveSlidesPersistsRefreshedData(t *testing.T) {
	store := NewStore(brieftest.CreateTestDB(t))
	seedTemplate(t, store)
	ctx := context.Background()

	slides, err := store.GetSlides(ctx, "T1")
	require.NoError(t, err)

	metric := slides[0].Elements[1]
	metric.SetRows([]map[string]any{{"count": 42}}, []string{"count"}, time.Now())
	require.NoError(t, store.SaveSlides(ctx, slides))

	reloaded, err := store.GetSlides(ctx, "T1")
	require.NoError(t, err)
	got := reloaded[0].Elements[1]
	require.Len(t, got.Content.Data, 1)
	// JSON numbers decode as float64
	assert.EqualValues(t, 42, got.Content.Data[0]["count"])
	assert.NotNil(t, got.RefreshedAt)
	assert.Equal(t, []string{"count"}, got.Columns)
}

func TestListPresentationsFiltersTemplates(t *testing.T) {
	store := NewStore(brieftest.CreateTestDB(t))
	ctx := context.Background()
	seedTemplate(t, store)
	require.NoError(t, store.CreatePresentation(ctx, &Presentation{ID: "P1", Name: "Board pack"}))

	all, err := store.ListPresentations(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	yes := true
	templates, err := store.ListPresentations(ctx, &yes)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "T1", templates[0].ID)
}

func TestDeletePresentationCascadesSlides(t *testing.T) {
	store := NewStore(brieftest.CreateTestDB(t))
	ctx := context.Background()
	seedTemplate(t, store)

	require.NoError(t, store.DeletePresentation(ctx, "T1"))
	slides, err := store.GetSlides(ctx, "T1")
	require.NoError(t, err)
	assert.Empty(t, slides)

	err = store.DeletePresentation(ctx, "T1")
	assert.True(t, errors.IsNotFoundError(err))
}
