// Package prompts builds the LLM prompts used by the generation pipeline and
// carries the static selling-point catalog.
//
// Prompt wording is a product asset, not an engineering contract: the only
// structural guarantee callers rely on is that each prompt instructs the model
// to reply with a single fenced JSON object matching the stage's schema.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed selling_point.json
var sellingPointCatalog []byte

// CatalogEntry is one promotional claim in the static selling-point catalog.
type CatalogEntry struct {
	Model   string `json:"model"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Catalog returns the embedded selling-point catalog.
func Catalog() ([]CatalogEntry, error) {
	var entries []CatalogEntry
	if err := json.Unmarshal(sellingPointCatalog, &entries); err != nil {
		return nil, fmt.Errorf("decode selling point catalog: %w", err)
	}
	return entries, nil
}

// SearchQuery builds the query-derivation prompt. The model must treat an
// explicit, keyword-bearing title as authoritative, infer intent from the body
// when the title is narrative or absent, exclude brand and model names, and
// return an empty search_query when the content is too ambiguous.
func SearchQuery(title, content string) string {
	return fmt.Sprintf(`<role>你是一名专业的SEO分析师，擅长从社交媒体内容中挖掘用户的真实搜索意图，并生成高价值的搜索长尾词。</role>
<task_goal>
分析下面这篇笔记，提取关键信息，生成一份适用于搜索引擎的SEO搜索长尾词。
</task_goal>

<process_description>
1. 如果标题存在：
  - 明确标题：标题直接包含关键词时，搜索查询应直接基于这些关键词，总结核心主题。
  - 模糊标题：标题是故事性、情感化或隐晦的，需要结合正文内容推断潜在主题。
2. 如果标题不存在，则根据正文内容生成搜索信息。
  - 如果正文内容也很模糊，则在结果中返回空字符串，并在reason中注明原因。
  - 不可以根据模糊的内容强行生成搜索信息。
3. 通用规则：
  - 查询简洁，5-10个关键词，避免长句。
  - 搜索内容绝对不能包含具体的汽车品牌或者汽车车型。
  - 搜索长尾词只能有一个，不要返回多个。
</process_description>

搜索信息用markdown的格式返回json信息，格式如下：
<output_format>
`+"```json"+`
{
  "search_query": "string",
  "reason": "string"
}
`+"```"+`
</output_format>

本次任务给定的笔记标题是：
<title>
%s
</title>

本次任务给定的笔记内容是：
<content>
%s
</content>
`, title, content)
}

// Article builds the article-generation prompt over concatenated search
// results. Structural rules the pipeline depends on: fenced JSON reply,
// weighted 20-character title cap, double-newline paragraph separation,
// 8-10 punctuation-free topic tags, no source platform or author names.
func Article(searchContent string) string {
	return fmt.Sprintf(`你是一个小红书博主，你拥有卓越的互联网网感，写作风格非常的小红书化。
我在网络上搜索了一些参考信息，请根据以下参考内容，生成一篇小红书笔记。
参考内容：
<search_content>
%s
</search_content>

小红书笔记的输出格式为json格式，格式为：
<output_format>
`+"```json"+`
{
  "title": "string",
  "content": "string",
  "topic": "string[]"
}
`+"```"+`
</output_format>

1. 笔记内容需要符合平台内容规范和风格，content中不需要携带话题标签。
2. 笔记内容不能出现参考内容来源的平台名称、作者名称或账号。
3. topic为8-10个话题词，不能含有特殊字符和emoji，比如空格、#等符号。
4. 段落之间必须用两个换行符隔开才能体现出段落感。
5. 笔记内容需要在合适的地方加一些表情符号，增加笔记的趣味性。
6. 笔记标题不能超过20个字符，一个中文算2个字符，英文和数字算1个字符，标题中不要出现emoji。
7. 笔记标题需要吸引人，可以用问句引起读者的好奇心。
`, searchContent)
}

// SellingPoint builds the promotion prompt over the article body and the
// catalog. The reply must reference exactly one catalog model, invent nothing
// outside the catalog, and cite the entries actually used.
func SellingPoint(article string, catalog []CatalogEntry) (string, error) {
	catalogJSON, err := json.Marshal(catalog)
	if err != nil {
		return "", fmt.Errorf("marshal selling point catalog: %w", err)
	}

	return fmt.Sprintf(`你是一个小红书博主，擅长在笔记的结尾插入广告主的推广内容。
请根据给出的笔记内容，在笔记的结尾添加一段与荣威卖点相近的段落，笔记的内容如下：
<article>
%s
</article>

荣威各车型的卖点信息如下，model是车型名称，title是卖点，content是卖点描述：
<selling_point>
%s
</selling_point>

你只需要给出卖点推广段落的内容和话题标签，以及参考了什么卖点信息，结果以json信息返回，格式为：
<output_format>
`+"```json"+`
{
  "selling_point_paragraph": "string",
  "topic": "string[]",
  "reference_selling_point": [
    {
      "model": "string",
      "title": "string",
      "content": "string"
    }
  ]
}
`+"```"+`
</output_format>
1. 参考的卖点信息只能选取同一款车型。
2. 卖点车型不能胡编乱造，必须是卖点信息中存在的车型。
3. 卖点段落中必须包含具体车型和卖点信息，卖点与车型必须与给出的卖点信息匹配。
4. topic中不能含有特殊字符，比如空格、#等符号。
`, article, catalogJSON), nil
}

// TrendingArticle builds the article prompt for the trending pipeline, seeded
// by an aggregator headline instead of web-search results.
func TrendingArticle(headline string) string {
	return fmt.Sprintf(`你是一个头条汽车领域的创作者。请围绕下面这条热门汽车资讯标题，写一篇观点鲜明、信息充实的头条文章。
资讯标题：
<headline>
%s
</headline>

文章的输出格式为json格式，格式为：
<output_format>
`+"```json"+`
{
  "title": "string",
  "content": "string",
  "topic": "string[]"
}
`+"```"+`
</output_format>

1. 文章内容不能出现资讯来源的平台名称或作者名称。
2. topic为8-10个话题词，不能含有特殊字符和emoji。
3. 段落之间用两个换行符隔开。
`, headline)
}
