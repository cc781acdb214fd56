package extractor

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"scd-extractor/internal/archive"
	"scd-extractor/internal/models"
	"scd-extractor/internal/parser"
	"scd-extractor/internal/vsdxtest"
	"scd-extractor/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var defaultLayout = PageLayout{
	Catalog: vsdxtest.PagesPart,
	Dir:     vsdxtest.PageDir,
	Prefix:  "page",
	Suffix:  ".xml",
}

func openMem(t *testing.T, b *vsdxtest.Builder) *archive.Archive {
	t.Helper()
	data, err := b.Bytes()
	require.NoError(t, err)
	arc, err := archive.NewReader(bytes.NewReader(data), int64(len(data)), "test.vsdx", 0)
	require.NoError(t, err)
	return arc
}

func collect(t *testing.T, e *Extractor) ([]models.Record, error) {
	t.Helper()
	var out []models.Record
	for r, err := range e.Records() {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func TestResolveTemplates(t *testing.T) {
	arc := openMem(t, vsdxtest.New().
		Master("2", "Signal line").
		Master("7", "Function block v2").
		Master("9", "Function block").
		Master("11", "function block lower").
		Master("", "Function block no id"))

	set, err := ResolveTemplates(arc, vsdxtest.MastersPart, "Function block", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, models.NewTemplateSet("7", "9"), set)
}

func TestResolveTemplatesErrors(t *testing.T) {
	_, err := ResolveTemplates(openMem(t, vsdxtest.New().Without(vsdxtest.MastersPart)),
		vsdxtest.MastersPart, "Function block", logger.Nop())
	assert.ErrorIs(t, err, ErrMalformedArchive)

	_, err = ResolveTemplates(openMem(t, vsdxtest.New().Raw(vsdxtest.MastersPart, "<Masters><Master")),
		vsdxtest.MastersPart, "Function block", logger.Nop())
	assert.ErrorIs(t, err, ErrMalformedArchive)

	_, err = ResolveTemplates(openMem(t, vsdxtest.New().Raw(vsdxtest.MastersPart, "<Pages/>")),
		vsdxtest.MastersPart, "Function block", logger.Nop())
	assert.ErrorIs(t, err, ErrMalformedArchive)

	_, err = ResolveTemplates(openMem(t, vsdxtest.New().Raw(vsdxtest.MastersPart, `<Masters xmlns="urn:other"/>`)),
		vsdxtest.MastersPart, "Function block", logger.Nop())
	assert.ErrorIs(t, err, ErrMalformedArchive, "Masters outside the Visio namespace")

	set, err := ResolveTemplates(openMem(t, vsdxtest.New().Raw(vsdxtest.MastersPart, `<Masters xmlns="`+parser.NSVisio+`"/>`)),
		vsdxtest.MastersPart, "Function block", logger.Nop())
	require.NoError(t, err)
	assert.Zero(t, set.Len())
}

func TestLocatePages(t *testing.T) {
	arc := openMem(t, vsdxtest.New().
		Page("Overview", "rId1").
		Page("Pumps", "rId12").
		Page("Pumps", "rId3"))

	pages, err := LocatePages(arc, defaultLayout)
	require.NoError(t, err)
	assert.Equal(t, models.PageIndex{
		"visio/pages/page1.xml":  "Overview",
		"visio/pages/page12.xml": "Pumps",
		"visio/pages/page3.xml":  "Pumps",
	}, pages)
}

func TestLocatePagesErrors(t *testing.T) {
	cases := map[string]*vsdxtest.Builder{
		"missing catalog": vsdxtest.New().Without(vsdxtest.PagesPart),
		"missing rel":     vsdxtest.New().Page("Overview", ""),
		"no digits":       vsdxtest.New().Page("Overview", "rIdX"),
		"bad xml":         vsdxtest.New().Raw(vsdxtest.PagesPart, "<Pages><Page Name='a'>"),
		"wrong root":      vsdxtest.New().Raw(vsdxtest.PagesPart, "<Masters/>"),
		"no namespace":    vsdxtest.New().Raw(vsdxtest.PagesPart, "<Pages><Page Name='a'><Rel/></Page></Pages>"),
	}
	for name, b := range cases {
		_, err := LocatePages(openMem(t, b), defaultLayout)
		assert.ErrorIs(t, err, ErrMalformedArchive, name)
	}
}

func TestContentPart(t *testing.T) {
	got, err := defaultLayout.ContentPart("rId27")
	require.NoError(t, err)
	assert.Equal(t, "visio/pages/page27.xml", got)

	_, err = defaultLayout.ContentPart("rel")
	assert.Error(t, err)
}

func TestScenarioSingleRecord(t *testing.T) {
	arc := openMem(t, vsdxtest.New().
		Master("7", "Function block v2").
		Page("Overview", "rId1").
		Content("page1.xml", vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{vsdxtest.FB("AND", "G101", "")}}))

	e := New(arc, models.NewTemplateSet("7"), models.PageIndex{"visio/pages/page1.xml": "Overview"})
	got, err := collect(t, e)
	require.NoError(t, err)

	want := []models.Record{{Sheet: "Overview", Type: "AND", Tag: "G101", Description: ""}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordCountAndOrder(t *testing.T) {
	arc := openMem(t, vsdxtest.New().
		Content("page1.xml",
			vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{vsdxtest.FB("AND", "A1", "first"), vsdxtest.FB("OR", "A2", "second")}},
			vsdxtest.Shape{Master: "3", Sections: []vsdxtest.Section{vsdxtest.FB("NOT", "X", "ignored")}},
			vsdxtest.Shape{Sections: []vsdxtest.Section{vsdxtest.FB("NOT", "Y", "no master")}},
			vsdxtest.Shape{Master: "8"},
			vsdxtest.Shape{Master: "3", Children: []vsdxtest.Shape{
				{Master: "8", Sections: []vsdxtest.Section{vsdxtest.FB("PID", "A3", "nested")}},
			}},
		).
		Content("page2.xml",
			vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{
				vsdxtest.FB("MA", "B1", ""),
				{Name: "User", Rows: []vsdxtest.Row{{N: "Tag", V: "not a property"}}},
			}},
		))

	pages := models.PageIndex{"visio/pages/page1.xml": "One", "visio/pages/page2.xml": "Two"}
	e := New(arc, models.NewTemplateSet("7", "8"), pages)

	got, err := collect(t, e)
	require.NoError(t, err)
	want := []models.Record{
		{Sheet: "One", Type: "AND", Tag: "A1", Description: "first"},
		{Sheet: "One", Type: "OR", Tag: "A2", Description: "second"},
		{Sheet: "One", Type: "PID", Tag: "A3", Description: "nested"},
		{Sheet: "Two", Type: "MA", Tag: "B1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}

	// restartable: a second pass yields the same sequence
	again, err := collect(t, e)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestRowRules(t *testing.T) {
	sec := vsdxtest.Section{Rows: []vsdxtest.Row{
		{N: "FB", V: "AND"},
		{N: "Tag", V: "OLD"},
		{N: "Colour", V: "red"},
		{N: "Tag2", V: "NEW"},
		{N: "Info", NoCell: true},
	}}
	arc := openMem(t, vsdxtest.New().Content("page1.xml", vsdxtest.Shape{Master: "1", Sections: []vsdxtest.Section{sec}}))

	got, err := collect(t, New(arc, models.NewTemplateSet("1"), models.PageIndex{"visio/pages/page1.xml": "P"}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NEW", got[0].Tag, "last matching row wins")
	assert.Equal(t, "", got[0].Description, "row without a cell is empty")
	assert.Equal(t, "AND", got[0].Type)
}

func TestRowWithoutValueAttribute(t *testing.T) {
	content := `<PageContents xmlns="http://schemas.microsoft.com/office/visio/2012/main"><Shapes>
<Shape ID="1" Master="1"><Section N="Property">
  <Row N="FB"><Cell N="Value"/></Row>
  <Row><Cell V="orphan"/></Row>
  <Row N="Tag"><Cell N="Value" V="T-1"/></Row>
</Section></Shape></Shapes></PageContents>`
	arc := openMem(t, vsdxtest.New().Raw("visio/pages/page1.xml", content))

	got, err := collect(t, New(arc, models.NewTemplateSet("1"), models.PageIndex{"visio/pages/page1.xml": "P"}))
	require.NoError(t, err)
	assert.Equal(t, []models.Record{{Sheet: "P", Tag: "T-1"}}, got)
}

func TestZeroTemplates(t *testing.T) {
	arc := openMem(t, vsdxtest.New().
		Content("page1.xml", vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{vsdxtest.FB("AND", "A", "")}}))

	e := New(arc, models.NewTemplateSet(), models.PageIndex{})
	got, err := collect(t, e)
	require.NoError(t, err)
	assert.Empty(t, got)

	all, err := e.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	// content parts are still parsed when nothing can match
	broken := openMem(t, vsdxtest.New().Raw("visio/pages/page1.xml", "<broken"))
	_, err = collect(t, New(broken, models.NewTemplateSet(), models.PageIndex{}))
	assert.ErrorIs(t, err, ErrMalformedArchive)
	_, err = New(broken, models.NewTemplateSet(), models.PageIndex{}, WithWorkers(2)).Collect(context.Background())
	assert.ErrorIs(t, err, ErrMalformedArchive)
}

func TestOnlyVisioElementsBind(t *testing.T) {
	cases := map[string]string{
		"foreign namespace": `<PageContents xmlns="urn:not-visio"><Shapes>
<Shape Master="7"><Section N="Property"><Row N="FB"><Cell V="AND"/></Row></Section></Shape>
</Shapes></PageContents>`,
		"swapped case": `<PageContents xmlns="` + parser.NSVisio + `"><Shapes>
<SHAPE Master="7"><Section N="Property"><Row N="FB"><Cell V="AND"/></Row></Section></SHAPE>
<shape Master="7"><Section N="Property"><Row N="FB"><Cell V="AND"/></Row></Section></shape>
<Shape master="7"><Section N="Property"><Row N="FB"><Cell V="AND"/></Row></Section></Shape>
</Shapes></PageContents>`,
		"foreign children": `<PageContents xmlns="` + parser.NSVisio + `" xmlns:o="urn:other"><Shapes>
<Shape Master="7"><o:Section N="Property"><Row N="FB"><Cell V="AND"/></Row></o:Section></Shape>
</Shapes></PageContents>`,
		"lower-case section": `<PageContents xmlns="` + parser.NSVisio + `"><Shapes>
<Shape Master="7"><section n="Property"><row n="FB"><cell v="AND"/></row></section></Shape>
</Shapes></PageContents>`,
	}
	for name, content := range cases {
		arc := openMem(t, vsdxtest.New().Raw("visio/pages/page1.xml", content))
		got, err := collect(t, New(arc, models.NewTemplateSet("7"), models.PageIndex{"visio/pages/page1.xml": "P"}))
		require.NoError(t, err, name)
		assert.Empty(t, got, name)
	}
}

func TestMissingPageMapping(t *testing.T) {
	arc := openMem(t, vsdxtest.New().
		Content("page1.xml", vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{vsdxtest.FB("AND", "A", "")}}).
		Content("page9.xml", vsdxtest.Shape{Master: "7"}))

	e := New(arc, models.NewTemplateSet("7"), models.PageIndex{"visio/pages/page1.xml": "Overview"})
	got, err := collect(t, e)
	assert.ErrorIs(t, err, ErrInconsistentArchive)
	assert.Contains(t, err.Error(), "visio/pages/page9.xml")
	assert.Len(t, got, 1, "records before the failing part were already yielded")

	_, err = e.Collect(context.Background())
	assert.ErrorIs(t, err, ErrInconsistentArchive)
}

func TestUnmappedPartWithoutMatchesIsIgnored(t *testing.T) {
	arc := openMem(t, vsdxtest.New().
		Content("page1.xml", vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{vsdxtest.FB("AND", "A", "")}}).
		Content("page5.xml", vsdxtest.Shape{Master: "2", Sections: []vsdxtest.Section{vsdxtest.FB("OR", "B", "")}}))

	got, err := New(arc, models.NewTemplateSet("7"), models.PageIndex{"visio/pages/page1.xml": "Overview"}).
		Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMalformedContentPart(t *testing.T) {
	arc := openMem(t, vsdxtest.New().Raw("visio/pages/page1.xml", "<PageContents><Shapes>"))
	_, err := collect(t, New(arc, models.NewTemplateSet("7"), models.PageIndex{}))
	assert.ErrorIs(t, err, ErrMalformedArchive)
}

func TestCollectConcurrentKeepsOrder(t *testing.T) {
	b := vsdxtest.New()
	pages := models.PageIndex{}
	var want []models.Record
	for i := 1; i <= 12; i++ {
		file := "page" + strconv.Itoa(i) + ".xml"
		tag := "T" + strconv.Itoa(i)
		b.Content(file,
			vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{vsdxtest.FB("AND", tag+"a", "")}},
			vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{vsdxtest.FB("OR", tag+"b", "")}},
		)
		sheet := "Sheet " + strconv.Itoa(i)
		pages["visio/pages/"+file] = sheet
		want = append(want,
			models.Record{Sheet: sheet, Type: "AND", Tag: tag + "a"},
			models.Record{Sheet: sheet, Type: "OR", Tag: tag + "b"},
		)
	}
	arc := openMem(t, b)

	got, err := New(arc, models.NewTemplateSet("7"), pages, WithWorkers(4)).Collect(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("concurrent order mismatch (-want +got):\n%s", diff)
	}

	seq, err := New(arc, models.NewTemplateSet("7"), pages).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq, got)
}

func TestCollectConcurrentError(t *testing.T) {
	arc := openMem(t, vsdxtest.New().
		Content("page1.xml", vsdxtest.Shape{Master: "7", Sections: []vsdxtest.Section{vsdxtest.FB("AND", "A", "")}}).
		Raw("visio/pages/page2.xml", "<broken"))

	got, err := New(arc, models.NewTemplateSet("7"), models.PageIndex{"visio/pages/page1.xml": "P"}, WithWorkers(3)).
		Collect(context.Background())
	assert.ErrorIs(t, err, ErrMalformedArchive)
	assert.Nil(t, got)
}
