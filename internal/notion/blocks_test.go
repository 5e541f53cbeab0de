package notion

import (
	"testing"

	"github.com/jomei/notionapi"
)

func plainText(text string) []notionapi.RichText {
	return []notionapi.RichText{{PlainText: text}}
}

func TestBlocksToMarkdown(t *testing.T) {
	blocks := []notionapi.Block{
		&notionapi.Heading1Block{Heading1: notionapi.Heading{RichText: plainText("Title")}},
		&notionapi.ParagraphBlock{Paragraph: notionapi.Paragraph{RichText: plainText("Some prose.")}},
		&notionapi.BulletedListItemBlock{BulletedListItem: notionapi.ListItem{RichText: plainText("first")}},
		&notionapi.ToDoBlock{ToDo: notionapi.ToDo{RichText: plainText("ship it"), Checked: true}},
		&notionapi.QuoteBlock{Quote: notionapi.Quote{RichText: plainText("wise words")}},
		&notionapi.DividerBlock{},
	}

	got := blocksToMarkdown(blocks)
	want := "# Title\n\nSome prose.\n\n- first\n\n- [x] ship it\n\n> wise words\n\n---"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestBlocksToMarkdown_CodeFence(t *testing.T) {
	blocks := []notionapi.Block{
		&notionapi.CodeBlock{Code: notionapi.Code{
			RichText: plainText("fmt.Println(\"hi\")"),
			Language: "go",
		}},
	}

	got := blocksToMarkdown(blocks)
	want := "```go\n\nfmt.Println(\"hi\")\n\n```"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestBlocksToMarkdown_SkipsUnknownBlocks(t *testing.T) {
	blocks := []notionapi.Block{
		&notionapi.ParagraphBlock{Paragraph: notionapi.Paragraph{RichText: plainText("kept")}},
		&notionapi.ImageBlock{},
	}

	if got := blocksToMarkdown(blocks); got != "kept" {
		t.Errorf("expected unknown block skipped, got %q", got)
	}
}

func blockText(t *testing.T, rts []notionapi.RichText) string {
	t.Helper()
	if len(rts) != 1 || rts[0].Text == nil {
		t.Fatalf("expected a single text run, got %+v", rts)
	}
	return rts[0].Text.Content
}

func TestMarkdownToBlocks(t *testing.T) {
	body := "# Title\n\nSome prose.\n\n- item\n- [ ] open task\n\n> quoted\n\n---"

	blocks := markdownToBlocks(body)
	if len(blocks) != 6 {
		t.Fatalf("expected 6 blocks, got %d", len(blocks))
	}

	h1, ok := blocks[0].(*notionapi.Heading1Block)
	if !ok || blockText(t, h1.Heading1.RichText) != "Title" {
		t.Errorf("unexpected first block: %+v", blocks[0])
	}
	para, ok := blocks[1].(*notionapi.ParagraphBlock)
	if !ok || blockText(t, para.Paragraph.RichText) != "Some prose." {
		t.Errorf("unexpected paragraph: %+v", blocks[1])
	}
	bullet, ok := blocks[2].(*notionapi.BulletedListItemBlock)
	if !ok || blockText(t, bullet.BulletedListItem.RichText) != "item" {
		t.Errorf("unexpected bullet: %+v", blocks[2])
	}
	todo, ok := blocks[3].(*notionapi.ToDoBlock)
	if !ok || todo.ToDo.Checked || blockText(t, todo.ToDo.RichText) != "open task" {
		t.Errorf("unexpected to-do: %+v", blocks[3])
	}
	quote, ok := blocks[4].(*notionapi.QuoteBlock)
	if !ok || blockText(t, quote.Quote.RichText) != "quoted" {
		t.Errorf("unexpected quote: %+v", blocks[4])
	}
	if _, ok := blocks[5].(*notionapi.DividerBlock); !ok {
		t.Errorf("unexpected divider: %+v", blocks[5])
	}
}

func TestMarkdownToBlocks_CodeFence(t *testing.T) {
	body := "```go\nfmt.Println(1)\nfmt.Println(2)\n```"

	blocks := markdownToBlocks(body)
	if len(blocks) != 1 {
		t.Fatalf("expected one code block, got %d", len(blocks))
	}
	code, ok := blocks[0].(*notionapi.CodeBlock)
	if !ok {
		t.Fatalf("expected code block, got %T", blocks[0])
	}
	if string(code.Code.Language) != "go" {
		t.Errorf("expected language go, got %q", code.Code.Language)
	}
	if blockText(t, code.Code.RichText) != "fmt.Println(1)\nfmt.Println(2)" {
		t.Errorf("unexpected code content: %+v", code.Code.RichText)
	}
}

func TestMarkdownToBlocks_UnterminatedFence(t *testing.T) {
	body := "```\nline one\nline two"

	blocks := markdownToBlocks(body)
	if len(blocks) != 1 {
		t.Fatalf("expected one fallback block, got %d", len(blocks))
	}
	para, ok := blocks[0].(*notionapi.ParagraphBlock)
	if !ok {
		t.Fatalf("expected paragraph fallback, got %T", blocks[0])
	}
	if blockText(t, para.Paragraph.RichText) != "line one\nline two" {
		t.Errorf("unexpected fallback content: %+v", para.Paragraph.RichText)
	}
}

func TestMarkdownRoundTrip(t *testing.T) {
	body := "# Notes\n\nA paragraph here.\n\n- [x] done task\n\n- bullet"

	rendered := blocksToMarkdown(markdownToBlocks(body))
	if rendered != body {
		t.Errorf("body did not survive the round trip:\n%q\n%q", body, rendered)
	}
}
