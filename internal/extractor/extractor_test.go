// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package extractor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/profile"
)

type fakeBodies map[string]string

func (f fakeBodies) SnapshotBody(hash string) (io.ReadCloser, error) {
	body, ok := f[hash]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func testSetup(t *testing.T, profileYAML string) (*Extractor, *database.DB, fakeBodies) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: "", MaxMemory: "512MB", Threads: 2, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg := profile.NewRegistry()
	if profileYAML != "" {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "src.yaml"), []byte(profileYAML), 0o600))
		require.NoError(t, reg.LoadDir(dir))
	}

	cfg := &config.Config{Organizer: config.OrganizerConfig{MinCleanTextLen: 20}}
	bodies := fakeBodies{}
	return New(cfg, db, bodies, reg), db, bodies
}

func seedSnapshot(t *testing.T, db *database.DB, bodies fakeBodies, hash, url, body string) {
	t.Helper()
	bodies[hash] = body
	require.NoError(t, db.InsertSnapshot(context.Background(), &models.Snapshot{
		Hash: hash, URL: url, Bytes: int64(len(body)), FetchedAt: time.Now().UTC(),
	}))
}

const rssProfile = `
id: src
url: https://agencia.example.gov.br/feed
strategy: RSS
tier: 1
is_official: true
interval: 60s
`

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Agência</title>
<item>
  <title>Decreto nº 11.555/2025 libera R$ 1.234,56 para hospitais</title>
  <link>https://agencia.example.gov.br/noticias/decreto-11555</link>
  <description>O decreto publicado hoje destina recursos emergenciais aos hospitais federais.</description>
</item>
<item>
  <title>Curta</title>
  <link>https://agencia.example.gov.br/noticias/curta</link>
  <description>x</description>
</item>
</channel></rss>`

func TestProcessFeedVersionsAndAnchors(t *testing.T) {
	e, db, bodies := testSetup(t, rssProfile)
	ctx := context.Background()
	seedSnapshot(t, db, bodies, "snap1", "https://agencia.example.gov.br/feed", rssBody)

	docIDs, err := e.Process(ctx, "src", "https://agencia.example.gov.br/feed", "snap1", models.StrategyRSS)
	require.NoError(t, err)
	require.Len(t, docIDs, 1, "the short item is discarded")

	doc, err := db.GetDocument(ctx, docIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "https://agencia.example.gov.br/noticias/decreto-11555", doc.URL)
	assert.NotZero(t, doc.SimHash)

	got, err := db.AnchorsForDoc(ctx, doc.ID)
	require.NoError(t, err)
	types := map[models.AnchorType]bool{}
	for _, a := range got {
		types[a.Type] = true
	}
	assert.True(t, types[models.AnchorACT])
	assert.True(t, types[models.AnchorMoney])

	// Re-processing the same payload produces no new version.
	seedSnapshot(t, db, bodies, "snap2", "https://agencia.example.gov.br/feed", rssBody)
	docIDs, err = e.Process(ctx, "src", "https://agencia.example.gov.br/feed", "snap2", models.StrategyRSS)
	require.NoError(t, err)
	assert.Empty(t, docIDs)

	// A changed item produces version 2.
	changed := strings.Replace(rssBody, "recursos emergenciais", "novos recursos emergenciais", 1)
	seedSnapshot(t, db, bodies, "snap3", "https://agencia.example.gov.br/feed", changed)
	docIDs, err = e.Process(ctx, "src", "https://agencia.example.gov.br/feed", "snap3", models.StrategyRSS)
	require.NoError(t, err)
	require.Len(t, docIDs, 1)
	doc2, err := db.GetDocument(ctx, docIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, doc2.Version)
}

const htmlProfile = `
id: src
url: https://portal.example.gov.br/noticia
strategy: HTML
tier: 2
interval: 60s
content_selector: "div.conteudo"
`

func TestParseHTMLUsesProfileSelector(t *testing.T) {
	e, db, bodies := testSetup(t, htmlProfile)
	ctx := context.Background()
	page := `<html><head>
		<title>Fallback title</title>
		<meta property="og:title" content="Governo publica portaria sobre licitações"/>
		<link rel="canonical" href="https://portal.example.gov.br/noticia-canonica"/>
		<meta property="article:published_time" content="2026-08-25T09:30:00Z"/>
	</head><body>
		<nav>menu menu menu</nav>
		<div class="conteudo">A Portaria 123/2026 estabelece novas regras para licitações públicas federais.</div>
		<footer>rodapé</footer>
	</body></html>`
	seedSnapshot(t, db, bodies, "page1", "https://portal.example.gov.br/noticia", page)

	docIDs, err := e.Process(ctx, "src", "https://portal.example.gov.br/noticia", "page1", models.StrategyHTML)
	require.NoError(t, err)
	require.Len(t, docIDs, 1)

	doc, err := db.GetDocument(ctx, docIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Governo publica portaria sobre licitações", doc.Title)
	assert.Equal(t, "https://portal.example.gov.br/noticia-canonica", doc.CanonicalURL)
	require.NotNil(t, doc.PublishedAt)
	assert.Equal(t, 2026, doc.PublishedAt.Year())
	assert.Contains(t, doc.CleanText, "Portaria 123/2026")
	assert.NotContains(t, doc.CleanText, "menu")
	assert.NotContains(t, doc.CleanText, "rodapé")
}

const apiProfile = `
id: src
url: https://dadosabertos.example.leg.br/api/v2/proposicoes
strategy: API
tier: 2
interval: 60s
api:
  items_path: dados.itens
  fields:
    url: uri
    title: ementa
    text: texto
    published: data
`

func TestParseAPIContract(t *testing.T) {
	e, db, bodies := testSetup(t, apiProfile)
	ctx := context.Background()
	payload := `{"dados":{"itens":[
		{"uri":"https://example.leg.br/prop/1","ementa":"PL 1234/2025 sobre dados pessoais",
		 "texto":"Projeto de lei que altera o tratamento de dados pessoais em órgãos públicos.",
		 "data":"2026-08-24T10:00:00"},
		{"ementa":"sem uri, ignorado"}
	]}}`
	seedSnapshot(t, db, bodies, "api1", "https://dadosabertos.example.leg.br/api/v2/proposicoes", payload)

	docIDs, err := e.Process(ctx, "src", "https://dadosabertos.example.leg.br/api/v2/proposicoes", "api1", models.StrategyAPI)
	require.NoError(t, err)
	require.Len(t, docIDs, 1)

	doc, err := db.GetDocument(ctx, docIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "https://example.leg.br/prop/1", doc.URL)
	assert.Equal(t, "PL 1234/2025 sobre dados pessoais", doc.Title)
	require.NotNil(t, doc.PublishedAt)
}

const headlessProfile = `
id: src
url: https://portal.example.gov.br/app
strategy: SPA_HEADLESS
tier: 2
interval: 60s
capture:
  url_pattern: /api/v1/noticias
  content_type: application/json
api:
  items_path: itens
  fields:
    url: link
    title: titulo
    text: corpo
`

func seedCapturedSnapshot(t *testing.T, db *database.DB, bodies fakeBodies, hash, url, contentType, body string) {
	t.Helper()
	bodies[hash] = body
	require.NoError(t, db.InsertSnapshot(context.Background(), &models.Snapshot{
		Hash: hash, URL: url, Headers: map[string]string{"Content-Type": contentType},
		Bytes: int64(len(body)), FetchedAt: time.Now().UTC(),
	}))
}

func TestParseCapturedAppliesFilter(t *testing.T) {
	e, db, bodies := testSetup(t, headlessProfile)
	ctx := context.Background()
	payload := `{"itens":[{"link":"https://portal.example.gov.br/noticias/1",
		"titulo":"Edital de concurso publicado no painel",
		"corpo":"A secretaria publicou edital com quinhentas vagas para a rede estadual."}]}`

	seedCapturedSnapshot(t, db, bodies, "cap1",
		"https://portal.example.gov.br/api/v1/noticias?page=1", "application/json; charset=utf-8", payload)
	docIDs, err := e.Process(ctx, "src", "https://portal.example.gov.br/app", "cap1", models.StrategySPAHeadless)
	require.NoError(t, err)
	require.Len(t, docIDs, 1)

	// A response from outside the filter means the page changed; parsing
	// must refuse rather than guess.
	seedCapturedSnapshot(t, db, bodies, "cap2",
		"https://portal.example.gov.br/home", "application/json", payload)
	_, err = e.Process(ctx, "src", "https://portal.example.gov.br/app", "cap2", models.StrategySPAHeadless)
	assert.Error(t, err)

	seedCapturedSnapshot(t, db, bodies, "cap3",
		"https://portal.example.gov.br/api/v1/noticias", "text/html", "<html></html>")
	_, err = e.Process(ctx, "src", "https://portal.example.gov.br/app", "cap3", models.StrategySPAHeadless)
	assert.Error(t, err)
}

func TestWalkPath(t *testing.T) {
	payload := map[string]any{"a": map[string]any{"b": []any{"x"}}}

	node, err := walkPath(payload, "a.b")
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, node)

	_, err = walkPath(payload, "a.missing")
	assert.Error(t, err)

	_, err = walkPath(payload, "a.b.c")
	assert.Error(t, err)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, " Decreto publicado hoje ", stripTags("<p>Decreto <b>publicado</b> hoje</p>"))
}

func TestParsePDFRejectsGarbage(t *testing.T) {
	_, err := parsePDF(strings.NewReader("not a pdf"), "https://example.gov.br/doc.pdf")
	assert.Error(t, err)
}
