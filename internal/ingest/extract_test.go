package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextExtractor_Chapters(t *testing.T) {
	input := `The Prince of Winterfell

PROLOGUE

The woods began to grow dark.

CHAPTER 1 Bran

The morning had dawned clear and cold.

Chapter 2 Catelyn

Catelyn had never liked this godswood.
`
	ex, err := textExtractor{}.Extract(Document{Name: "got.txt", Data: []byte(input)})
	require.NoError(t, err)
	require.Len(t, ex.Sections, 4)

	assert.Equal(t, "", ex.Sections[0].Heading)
	assert.Contains(t, ex.Sections[0].Text, "The Prince of Winterfell")
	assert.Equal(t, "PROLOGUE", ex.Sections[1].Heading)
	assert.Equal(t, "CHAPTER 1 Bran", ex.Sections[2].Heading)
	assert.Contains(t, ex.Sections[2].Text, "clear and cold")
	assert.Equal(t, "Chapter 2 Catelyn", ex.Sections[3].Heading)
}

func TestTextExtractor_LongLineIsNotHeading(t *testing.T) {
	line := "Chapter " + strings.Repeat("and so the story went on ", 10)
	_, ok := chapterHeading(line)
	assert.False(t, ok)
}

func TestMarkdownExtractor_Headings(t *testing.T) {
	input := `Front matter before any heading.

# A Clash of Kings

Opening text.

## Prologue

The comet's tail spread across the dawn.

### Arya

Arya rode in the cart.

#### Not a chapter

Still Arya.

Sansa
-----

Sansa in the godswood.
`
	ex, err := newMarkdownExtractor().Extract(Document{Name: "clash.md", Data: []byte(input)})
	require.NoError(t, err)

	assert.Equal(t, "A Clash of Kings", ex.Title)
	require.Len(t, ex.Sections, 5)

	assert.Equal(t, "", ex.Sections[0].Heading)
	assert.Equal(t, "Front matter before any heading.", ex.Sections[0].Text)

	assert.Equal(t, "A Clash of Kings", ex.Sections[1].Heading)
	assert.Equal(t, "Prologue", ex.Sections[2].Heading)
	assert.Contains(t, ex.Sections[2].Text, "comet's tail")
	assert.NotContains(t, ex.Sections[2].Text, "##")

	assert.Equal(t, "Arya", ex.Sections[3].Heading)
	assert.Contains(t, ex.Sections[3].Text, "Still Arya.")

	assert.Equal(t, "Sansa", ex.Sections[4].Heading)
	assert.Contains(t, ex.Sections[4].Text, "Sansa in the godswood.")
	assert.NotContains(t, ex.Sections[4].Text, "-----")
}

func TestMarkdownExtractor_NoHeadings(t *testing.T) {
	ex, err := newMarkdownExtractor().Extract(Document{Name: "plain.md", Data: []byte("Just prose.\n\nMore prose.")})
	require.NoError(t, err)
	require.Len(t, ex.Sections, 1)
	assert.Equal(t, "", ex.Sections[0].Heading)
}

func TestHTMLExtractor(t *testing.T) {
	input := `<html><head><title>A Storm of Swords</title><style>p{}</style></head>
<body>
  <h2>Jaime</h2>
  <p>The wind was blowing <em>hard</em>.</p>
  <p>He was
     chained.</p>
  <script>ignored()</script>
</body></html>`

	ex, err := htmlExtractor{}.Extract(Document{Name: "storm.html", Data: []byte(input)})
	require.NoError(t, err)

	assert.Equal(t, "A Storm of Swords", ex.Title)
	require.Len(t, ex.Sections, 1)
	assert.Equal(t, "Jaime", ex.Sections[0].Heading)

	text := Normalize(ex.Sections[0].Text)
	assert.Equal(t, "Jaime\n\nThe wind was blowing hard.\n\nHe was chained.", text)
	assert.NotEmpty(t, ex.Sections[0].HTML)
}

// buildEPUB assembles a minimal EPUB with the given XHTML chapters in spine order.
func buildEPUB(t *testing.T, title string, chapters []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, body string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}

	write("mimetype", "application/epub+zip")
	write("META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`)

	var manifest, spine strings.Builder
	for i := range chapters {
		id := string(rune('a' + i))
		manifest.WriteString(`<item id="` + id + `" href="text/ch` + id + `.xhtml" media-type="application/xhtml+xml"/>`)
		spine.WriteString(`<itemref idref="` + id + `"/>`)
	}
	write("OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>`+title+`</dc:title></metadata>
  <manifest><item id="css" href="style.css" media-type="text/css"/>`+manifest.String()+`</manifest>
  <spine>`+spine.String()+`</spine>
</package>`)
	write("OEBPS/style.css", "p { margin: 0 }")
	for i, body := range chapters {
		id := string(rune('a' + i))
		write("OEBPS/text/ch"+id+".xhtml", `<?xml version="1.0"?><html xmlns="http://www.w3.org/1999/xhtml"><body>`+body+`</body></html>`)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestEPUBExtractor_SpineOrderAndTitle(t *testing.T) {
	data := buildEPUB(t, "A Game of Thrones", []string{
		`<p>Dedication for George.</p>`,
		`<h1>Prologue</h1><p>We should start back.</p>`,
		`<h2>Bran</h2><p>The morning had dawned clear and cold.</p>`,
		`<p>Continued without a heading.</p>`,
	})

	ex, err := epubExtractor{}.Extract(Document{Name: "got.epub", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "A Game of Thrones", ex.Title)
	require.Len(t, ex.Sections, 4)
	assert.Equal(t, "", ex.Sections[0].Heading)
	assert.Equal(t, "Prologue", ex.Sections[1].Heading)
	assert.Equal(t, "Bran", ex.Sections[2].Heading)
	assert.Equal(t, "", ex.Sections[3].Heading)
}

func TestEPUBExtractor_NotAZip(t *testing.T) {
	_, err := epubExtractor{}.Extract(Document{Name: "bad.epub", Data: []byte("nope")})
	assert.ErrorIs(t, err, errBadContainer)
}

// buildPDF writes a one-page PDF showing lines with Helvetica. A non-zero
// rootOffset replaces the catalog's xref offset, pointing it into the header.
func buildPDF(title string, lines []string, rootOffset int) []byte {
	var content strings.Builder
	content.WriteString("BT /F1 12 Tf 72 720 Td")
	for i, line := range lines {
		if i > 0 {
			content.WriteString(" T*")
		}
		fmt.Fprintf(&content, " (%s) Tj", line)
	}
	content.WriteString(" ET")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
		fmt.Sprintf("<< /Title (%s) >>", title),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	if rootOffset > 0 {
		offsets[0] = rootOffset
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 6 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFExtractor(t *testing.T) {
	data := buildPDF("A Game of Thrones", []string{"CHAPTER 1", "Jon Snow is the bastard son of Eddard Stark."}, 0)

	ex, err := pdfExtractor{}.Extract(Document{Name: "got.pdf", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "A Game of Thrones", ex.Title)
	require.NotEmpty(t, ex.Sections)
	last := ex.Sections[len(ex.Sections)-1]
	assert.Equal(t, "CHAPTER 1", last.Heading)
	assert.Contains(t, last.Text, "Jon Snow is the bastard son of Eddard Stark.")
}

func TestPDFExtractor_NotAPDF(t *testing.T) {
	_, err := pdfExtractor{}.Extract(Document{Name: "bad.pdf", Data: []byte("plain text")})
	assert.Error(t, err)
}

func TestIngestor_MalformedPDFIsAnError(t *testing.T) {
	data := buildPDF("Broken", []string{"never read"}, 1)

	assert.NotPanics(t, func() {
		_, err := NewIngestor(nil).ExtractChunks(Document{Name: "broken.pdf", Data: data})
		assert.ErrorIs(t, err, ErrIngestion)
	})
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("A Dance with Dragons.EPUB"))
	assert.True(t, Supported("notes.md"))
	assert.False(t, Supported("cover.jpg"))
	assert.Contains(t, Extensions(), ".pdf")
}
