package parser

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/config"
	"github.com/IshaanNene/kitmanual/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const listingHTML = `<!DOCTYPE html>
<html>
<body>
  <ul class="manual-list">
    <li>
      <a href="/menus/detail/4821">
        <img data-src="/img/4821.jpg" src="/img/blank.gif">
        <p class="name-ja">MGEX ストライクフリーダムガンダム</p>
        <p class="name-en">  MGEX   Strike Freedom
           Gundam </p>
        <p class="release">2024年11月8日</p>
      </a>
    </li>
    <li>
      <a href="/menus/detail/77">
        <img src="https://cdn.example.net/77.jpg">
        <p class="name-ja">ＨＧ　ザクII</p>
        <p class="release">2023年2月30日</p>
      </a>
    </li>
    <li>
      <a href="/menus/about">no id here</a>
    </li>
    <li>
      <span class="name-en">Item without a link</span>
    </li>
  </ul>
  <ul class="pagination">
    <li><a href="/?page=1">1</a></li>
    <li><a href="/?page=2">2</a></li>
    <li><a href="/?page=17">17</a></li>
    <li><a href="/?page=2">&raquo;</a></li>
  </ul>
</body>
</html>`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	cfg := config.DefaultConfig()
	site, err := catalog.NewSite("https://manual.example.net", "/", cfg.Site.DetailPath, cfg.Site.PDFPath)
	require.NoError(t, err)
	return NewExtractor(site, cfg.Site.Selectors, testLogger)
}

func makeResp(rawURL, body string) *types.Response {
	req, _ := types.NewRequest(rawURL)
	return &types.Response{
		Request:     req,
		StatusCode:  200,
		Body:        []byte(body),
		ContentType: "text/html",
		FinalURL:    rawURL,
	}
}

func TestParseListing(t *testing.T) {
	e := newTestExtractor(t)

	records, err := e.ParseListing(makeResp("https://manual.example.net/?page=1", listingHTML))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, int64(4821), first.ID)
	assert.Equal(t, "/menus/detail/4821", first.DetailPath)
	assert.Equal(t, "https://manual.example.net/menus/detail/4821", first.DetailURL)
	assert.Equal(t, "https://manual.example.net/pdf/4821.pdf", first.PDFURL)
	require.NotNil(t, first.NameForeign)
	assert.Equal(t, "MGEX Strike Freedom Gundam", *first.NameForeign)
	require.NotNil(t, first.Grade)
	assert.Equal(t, "MGEX", *first.Grade)
	require.NotNil(t, first.ReleaseDate)
	assert.Equal(t, time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC), *first.ReleaseDate)
	assert.Equal(t, "2024年11月8日", first.ReleaseDateText)
	require.NotNil(t, first.ImageURL)
	assert.Equal(t, "https://manual.example.net/img/4821.jpg", *first.ImageURL)

	second := records[1]
	assert.Equal(t, int64(77), second.ID)
	assert.Nil(t, second.NameForeign)
	require.NotNil(t, second.NameNative)
	assert.Equal(t, "ＨＧ ザクII", *second.NameNative)
	assert.Nil(t, second.ReleaseDate, "impossible calendar day must not produce a date")
	assert.Equal(t, "2023年2月30日", second.ReleaseDateText)
	require.NotNil(t, second.ImageURL)
	assert.Equal(t, "https://cdn.example.net/77.jpg", *second.ImageURL)
}

func TestParseListingEmptyPage(t *testing.T) {
	e := newTestExtractor(t)
	records, err := e.ParseListing(makeResp("https://manual.example.net/?page=9", `<html><body><ul class="manual-list"></ul></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractItemWhenItemIsTheLink(t *testing.T) {
	e := newTestExtractor(t)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<a class="card" href="https://manual.example.net/menus/detail/12?ref=top"><span class="name-en">RG Zeong</span></a>`))
	require.NoError(t, err)

	base, _ := url.Parse("https://manual.example.net/?page=1")
	rec, ok := e.ExtractItem(doc.Find("a.card"), base)
	require.True(t, ok)
	assert.Equal(t, int64(12), rec.ID)
	assert.Equal(t, "/menus/detail/12", rec.DetailPath)
	assert.Equal(t, "RG", rec.GradeCode())
	assert.Nil(t, rec.ImageURL)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		href   string
		want   int64
		wantOK bool
	}{
		{"/menus/detail/4821", 4821, true},
		{"https://manual.example.net/menus/detail/0042/", 42, true},
		{"/menus/detail/12?page=3", 12, true},
		{"/menus/about", 0, false},
		{"", 0, false},
		{"/menus/detail/99999999999999999999999", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := ParseID(tt.href)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferGrade(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"MGEX Strike Freedom", "MGEX"},
		{"MG Ex Strike Freedom", "MG"},
		{"mg 1/100 Zaku II Ver.2.0", "MG"},
		{"MGSD Freedom Gundam", "MGSD"},
		{"PG UNLEASHED RX-78-2", "PGU"},
		{"PG Unicorn Gundam", "PG"},
		{"Perfect Grade Strike", "PG"},
		{"HGUC RX-78-2", "HGUC"},
		{"HG 1/144 Aerial", "HG"},
		{"Entry Grade RX-78-2", "EG"},
		{"RE/100 Hammer Gundam", "RE/100"},
		{"SD Gundam Cross Silhouette", "SD"},
		{"HG1/144 Gundam", "HG"},
		{"RG1/144 Zaku", "RG"},
		{"HGUC1/144 Zaku", "HGUC"},
		{"Figure-rise Mechanics X", "Figure-rise"},
		{"Haro Ball", "Haro"},
		{"ＨＧ　ザクII", "ＨＧ"},
		{"Figure-rise Standard Agumon", "FRS"},
		{"  30MM   eEXM-17  ", "30MM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferGrade(tt.name)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	assert.Nil(t, InferGrade(""))
	assert.Nil(t, InferGrade("   \n "))
}

func TestParseReleaseDate(t *testing.T) {
	date := func(y int, m time.Month, d int) *time.Time {
		v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	tests := []struct {
		text string
		want *time.Time
	}{
		{"2024年11月8日", date(2024, time.November, 8)},
		{"発売日: 2024年 1月 15日", date(2024, time.January, 15)},
		{"２０２３年１２月２日", date(2023, time.December, 2)},
		{"2024年2月29日", date(2024, time.February, 29)},
		{"2024年2月30日", nil},
		{"2023年2月29日", nil},
		{"2024年13月1日", nil},
		{"2024年11月", nil},
		{"2024-03-05", date(2024, time.March, 5)},
		{"2024/3/5 release", date(2024, time.March, 5)},
		{"2024-02-31", nil},
		{"coming soon", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReleaseDate(tt.text))
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", CleanText("  a \n\t b　c  "))
	assert.Equal(t, "", CleanText(" \n "))
}

func TestLastPage(t *testing.T) {
	cfg := config.DefaultConfig()

	last, err := LastPage([]byte(listingHTML), cfg.Site.Selectors.Pager)
	require.NoError(t, err)
	assert.Equal(t, 17, last)

	last, err = LastPage([]byte(`<html><body><p>no pager</p></body></html>`), cfg.Site.Selectors.Pager)
	require.NoError(t, err)
	assert.Equal(t, 0, last)

	_, err = LastPage([]byte(listingHTML), "//ul[")
	require.Error(t, err)
}

func TestPageParam(t *testing.T) {
	assert.Equal(t, 5, PageParam("https://manual.example.net/?page=5"))
	assert.Equal(t, 1, PageParam("https://manual.example.net/"))
	assert.Equal(t, 0, PageParam("https://manual.example.net/?page=abc"))
}
