package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/suPer8Hu/talent-pipeline/internal/ai"
	"github.com/suPer8Hu/talent-pipeline/internal/queue"
	"github.com/suPer8Hu/talent-pipeline/internal/search"
)

// cannedProvider returns its replies in order.
type cannedProvider struct {
	replies []string
	err     error
	seen    [][]ai.Message
}

func (c *cannedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	c.seen = append(c.seen, messages)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1,2]\n```":         `[1,2]`,
		"  ```[1]```  ":           `[1]`,
	}
	for in, want := range cases {
		assert.Equal(t, want, stripFences(in), in)
	}
}

func TestLLMExtractor(t *testing.T) {
	p := &cannedProvider{replies: []string{"```json\n" + `{"tech_stack":[" Go ","go","Kubernetes",""],"locations":["Pune"]}` + "\n```"}}

	in, err := NewLLMExtractor(p).Extract(context.Background(), "Go devs in Pune")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Kubernetes"}, in.Technologies)
	assert.Equal(t, []string{"Pune"}, in.Locations)
	require.Len(t, p.seen, 1)
	assert.Equal(t, "Go devs in Pune", p.seen[0][1].Content)
}

func TestLLMExtractor_FallsBackToRequestText(t *testing.T) {
	p := &cannedProvider{replies: []string{`{"tech_stack":[],"locations":[]}`}}

	in, err := NewLLMExtractor(p).Extract(context.Background(), "rust wizards")
	require.NoError(t, err)
	assert.Equal(t, []string{"rust wizards"}, in.Technologies)
	assert.Empty(t, in.Locations)
}

func TestLLMExtractor_Errors(t *testing.T) {
	_, err := NewLLMExtractor(&cannedProvider{replies: []string{"sure! here you go"}}).
		Extract(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMalformedOutput)

	_, err = NewLLMExtractor(&cannedProvider{err: errors.New("boom")}).Extract(context.Background(), "x")
	assert.ErrorContains(t, err, "boom")

	_, err = NewLLMExtractor(&cannedProvider{}).Extract(context.Background(), "   ")
	assert.Error(t, err)
}

func TestLLMSynthesizer_DefaultLocations(t *testing.T) {
	p := &cannedProvider{replies: []string{`[{"location":"Bangalore","query":"site:linkedin.com/in \"Go\" Bangalore"},{"location":"x","query":"  "}]`}}

	out, err := NewLLMSynthesizer(p).Synthesize(context.Background(), Intent{Technologies: []string{"Go"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Bangalore", out[0].Location)
	assert.Contains(t, p.seen[0][1].Content, "Locations: Bangalore, Hyderabad, Mumbai, Delhi, Pune")
}

func TestLLMSynthesizer_WrappedAndMalformed(t *testing.T) {
	p := &cannedProvider{replies: []string{`{"queries":[{"location":"Pune","query":"q"}]}`, `nope`}}
	s := NewLLMSynthesizer(p)

	out, err := s.Synthesize(context.Background(), Intent{Technologies: []string{"Go"}, Locations: []string{"Pune"}})
	require.NoError(t, err)
	assert.Equal(t, []GeneratedQuery{{Location: "Pune", Query: "q"}}, out)

	_, err = s.Synthesize(context.Background(), Intent{Technologies: []string{"Go"}})
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestTemplateSynthesizer(t *testing.T) {
	out, err := TemplateSynthesizer{}.Synthesize(context.Background(), Intent{
		Technologies: []string{"Ruby", "Ruby on Rails"},
		Locations:    []string{"Pune"},
	})
	require.NoError(t, err)
	assert.Equal(t, []GeneratedQuery{{
		Location: "Pune",
		Query:    `site:linkedin.com/in ("Ruby" OR "Ruby on Rails") Pune`,
	}}, out)

	out, err = TemplateSynthesizer{}.Synthesize(context.Background(), Intent{Technologies: []string{"Go"}})
	require.NoError(t, err)
	assert.Len(t, out, len(DefaultLocations))
	assert.Equal(t, `site:linkedin.com/in "Go" Bangalore`, out[0].Query)
}

func TestKeywordExtractor(t *testing.T) {
	cases := []struct {
		in    string
		techs []string
		locs  []string
	}{
		{"Golang engineers in Berlin, Munich and Hamburg", []string{"Golang engineers"}, []string{"Berlin", "Munich", "Hamburg"}},
		{"  Rust developers ", []string{"Rust developers"}, []string{}},
		{"data engineers in fintech in Pune", []string{"data engineers in fintech"}, []string{"Pune"}},
		{"Go in", []string{"Go in"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := KeywordExtractor{}.Extract(context.Background(), tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.techs, got.Technologies)
			assert.Equal(t, tc.locs, got.Locations)
		})
	}

	_, err := KeywordExtractor{}.Extract(context.Background(), "   ")
	assert.Error(t, err)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&queue.Item{}))
	return db
}

type fakeRunner struct {
	calls []int
}

func (f *fakeRunner) RunOnce(ctx context.Context, batchLimit, resultsPerQuery int) (search.Summary, error) {
	_ = ctx
	f.calls = append(f.calls, batchLimit, resultsPerQuery)
	return search.Summary{Processed: []search.Processed{{ID: 1, Query: "q", HitCount: 3}}}, nil
}

func TestPlanner_Plan(t *testing.T) {
	db := openTestDB(t)
	repo := queue.NewRepo(db)
	extractor := NewLLMExtractor(&cannedProvider{replies: []string{`{"tech_stack":["Go"],"locations":["Pune","Delhi"]}`}})
	runner := &fakeRunner{}
	p := NewPlanner(extractor, TemplateSynthesizer{}, repo, runner, "llm-v1", nil)

	res, err := p.Plan(context.Background(), "Go devs", PlanOptions{RunSearch: true, BatchLimit: 5, MaxResultsPerQuery: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, res.GeneratedCount)
	assert.Equal(t, 2, res.Enqueued)
	require.NotNil(t, res.WorkerSummary)
	assert.Equal(t, []int{5, 20}, runner.calls)

	var items []queue.Item
	require.NoError(t, db.Order("id").Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, queue.StatusPending, items[0].Status)
	assert.Equal(t, []string{"Go"}, items[0].ParsedTechnologies)
	assert.Equal(t, []string{"Pune", "Delhi"}, items[1].ParsedLocations)
	require.NotNil(t, items[0].ParserVersion)
	assert.Equal(t, "llm-v1", *items[0].ParserVersion)
}

func TestPlanner_WithoutSearch(t *testing.T) {
	repo := queue.NewRepo(openTestDB(t))
	runner := &fakeRunner{}
	extractor := NewLLMExtractor(&cannedProvider{replies: []string{`{"tech_stack":["Go"],"locations":["Pune"]}`}})

	res, err := NewPlanner(extractor, TemplateSynthesizer{}, repo, runner, "", nil).
		Plan(context.Background(), "Go", PlanOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.WorkerSummary)
	assert.Empty(t, runner.calls)
	assert.Equal(t, 1, res.Enqueued)
}

func TestPlanner_KeywordFallback(t *testing.T) {
	db := openTestDB(t)
	repo := queue.NewRepo(db)

	res, err := NewPlanner(KeywordExtractor{}, TemplateSynthesizer{}, repo, nil, KeywordParserVersion, nil).
		Plan(context.Background(), "Kotlin developers in Pune and Delhi", PlanOptions{RunSearch: true})
	require.NoError(t, err)
	assert.Nil(t, res.WorkerSummary)
	assert.Equal(t, []GeneratedQuery{
		{Location: "Pune", Query: `site:linkedin.com/in "Kotlin developers" Pune`},
		{Location: "Delhi", Query: `site:linkedin.com/in "Kotlin developers" Delhi`},
	}, res.Generated)
	assert.Equal(t, 2, res.Enqueued)

	var items []queue.Item
	require.NoError(t, db.Order("id").Find(&items).Error)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].ParserVersion)
	assert.Equal(t, KeywordParserVersion, *items[0].ParserVersion)
}
