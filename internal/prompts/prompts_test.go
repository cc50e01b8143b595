package prompts_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialads/notegen/internal/prompts"
)

func TestCatalog(t *testing.T) {
	entries, err := prompts.Catalog()
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		assert.NotEmpty(t, e.Model)
		assert.NotEmpty(t, e.Title)
		assert.NotEmpty(t, e.Content)
	}
}

func TestSearchQuery_EmbedsTitleAndContent(t *testing.T) {
	title := "新手不会提车验车的六大表现"
	content := "提车的时候很多新手不知道要检查什么……"

	prompt := prompts.SearchQuery(title, content)

	assert.Contains(t, prompt, title)
	assert.Contains(t, prompt, content)
	assert.Contains(t, prompt, "```json")
	assert.Contains(t, prompt, "search_query")
}

func TestArticle_EmbedsSearchContent(t *testing.T) {
	searchContent := "title:提车注意事项\nsummary:检查漆面和里程"

	prompt := prompts.Article(searchContent)

	assert.Contains(t, prompt, searchContent)
	assert.Contains(t, prompt, "```json")
}

func TestSellingPoint_EmbedsArticleAndCatalog(t *testing.T) {
	catalog := []prompts.CatalogEntry{
		{Model: "测试车型", Title: "卖点", Content: "描述"},
	}

	prompt, err := prompts.SellingPoint("这是一篇笔记正文", catalog)
	require.NoError(t, err)

	assert.Contains(t, prompt, "这是一篇笔记正文")
	assert.Contains(t, prompt, "测试车型")
	assert.Contains(t, prompt, "selling_point_paragraph")
}

func TestTrendingArticle_EmbedsHeadline(t *testing.T) {
	prompt := prompts.TrendingArticle("某新车上市首月销量破万")

	assert.True(t, strings.Contains(prompt, "某新车上市首月销量破万"))
	assert.Contains(t, prompt, "```json")
}
