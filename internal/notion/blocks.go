package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// richTextPlain joins a rich-text run into its plain text. Blocks built
// locally carry only Text.Content; API responses also fill PlainText.
func richTextPlain(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}

// richTextFrom wraps plain text into a single rich-text run.
func richTextFrom(text string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: text}},
	}
}

// blocksToMarkdown renders fetched page blocks as markdown text.
// Unknown block types degrade to their plain text when available.
func blocksToMarkdown(blocks []notionapi.Block) string {
	var lines []string
	for _, block := range blocks {
		switch b := block.(type) {
		case *notionapi.ParagraphBlock:
			lines = append(lines, richTextPlain(b.Paragraph.RichText))
		case *notionapi.Heading1Block:
			lines = append(lines, "# "+richTextPlain(b.Heading1.RichText))
		case *notionapi.Heading2Block:
			lines = append(lines, "## "+richTextPlain(b.Heading2.RichText))
		case *notionapi.Heading3Block:
			lines = append(lines, "### "+richTextPlain(b.Heading3.RichText))
		case *notionapi.BulletedListItemBlock:
			lines = append(lines, "- "+richTextPlain(b.BulletedListItem.RichText))
		case *notionapi.NumberedListItemBlock:
			lines = append(lines, "1. "+richTextPlain(b.NumberedListItem.RichText))
		case *notionapi.ToDoBlock:
			mark := "[ ]"
			if b.ToDo.Checked {
				mark = "[x]"
			}
			lines = append(lines, "- "+mark+" "+richTextPlain(b.ToDo.RichText))
		case *notionapi.QuoteBlock:
			lines = append(lines, "> "+richTextPlain(b.Quote.RichText))
		case *notionapi.CodeBlock:
			lang := string(b.Code.Language)
			lines = append(lines, "```"+lang, richTextPlain(b.Code.RichText), "```")
		case *notionapi.DividerBlock:
			lines = append(lines, "---")
		default:
			// Skip blocks with no sensible text rendering.
		}
	}
	return strings.Join(lines, "\n\n")
}

// markdownToBlocks converts markdown text into Notion blocks, one block
// per line, recognizing the same subset blocksToMarkdown emits.
func markdownToBlocks(body string) []notionapi.Block {
	var blocks []notionapi.Block
	var codeLines []string
	var codeLang string
	inCode := false

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)

		if inCode {
			if strings.HasPrefix(trimmed, "```") {
				blocks = append(blocks, &notionapi.CodeBlock{
					BasicBlock: notionapi.BasicBlock{
						Object: notionapi.ObjectTypeBlock,
						Type:   notionapi.BlockTypeCode,
					},
					Code: notionapi.Code{
						RichText: richTextFrom(strings.Join(codeLines, "\n")),
						Language: codeLang,
					},
				})
				codeLines = nil
				inCode = false
			} else {
				codeLines = append(codeLines, line)
			}
			continue
		}

		switch {
		case trimmed == "":
			// Blank lines separate blocks; no block emitted.
		case strings.HasPrefix(trimmed, "```"):
			inCode = true
			codeLang = strings.TrimPrefix(trimmed, "```")
			if codeLang == "" {
				codeLang = "plain text"
			}
		case strings.HasPrefix(trimmed, "### "):
			blocks = append(blocks, headingBlock(3, strings.TrimPrefix(trimmed, "### ")))
		case strings.HasPrefix(trimmed, "## "):
			blocks = append(blocks, headingBlock(2, strings.TrimPrefix(trimmed, "## ")))
		case strings.HasPrefix(trimmed, "# "):
			blocks = append(blocks, headingBlock(1, strings.TrimPrefix(trimmed, "# ")))
		case strings.HasPrefix(trimmed, "- [x] ") || strings.HasPrefix(trimmed, "- [ ] "):
			checked := strings.HasPrefix(trimmed, "- [x] ")
			text := trimmed[len("- [x] "):]
			blocks = append(blocks, &notionapi.ToDoBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeToDo,
				},
				ToDo: notionapi.ToDo{RichText: richTextFrom(text), Checked: checked},
			})
		case strings.HasPrefix(trimmed, "- "):
			blocks = append(blocks, &notionapi.BulletedListItemBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeBulletedListItem,
				},
				BulletedListItem: notionapi.ListItem{RichText: richTextFrom(strings.TrimPrefix(trimmed, "- "))},
			})
		case strings.HasPrefix(trimmed, "> "):
			blocks = append(blocks, &notionapi.QuoteBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeQuote,
				},
				Quote: notionapi.Quote{RichText: richTextFrom(strings.TrimPrefix(trimmed, "> "))},
			})
		case trimmed == "---":
			blocks = append(blocks, &notionapi.DividerBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeDivider,
				},
			})
		default:
			blocks = append(blocks, &notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeParagraph,
				},
				Paragraph: notionapi.Paragraph{RichText: richTextFrom(trimmed)},
			})
		}
	}

	if inCode && len(codeLines) > 0 {
		blocks = append(blocks, &notionapi.ParagraphBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeParagraph,
			},
			Paragraph: notionapi.Paragraph{RichText: richTextFrom(strings.Join(codeLines, "\n"))},
		})
	}

	return blocks
}

func headingBlock(level int, text string) notionapi.Block {
	switch level {
	case 1:
		return &notionapi.Heading1Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading1},
			Heading1:   notionapi.Heading{RichText: richTextFrom(text)},
		}
	case 2:
		return &notionapi.Heading2Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading2},
			Heading2:   notionapi.Heading{RichText: richTextFrom(text)},
		}
	default:
		return &notionapi.Heading3Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading3},
			Heading3:   notionapi.Heading{RichText: richTextFrom(text)},
		}
	}
}
