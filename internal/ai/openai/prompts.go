package openai

import (
	"fmt"
	"strings"

	"github.com/DukeRupert/adcraft/internal/ai"
)

const copySystemPrompt = `You are a senior copywriter for small retail brands. You write short, punchy marketing copy that fits the channel it will be shown on. Never invent prices, discounts or claims that are not in the brief.`

// buildCopyPrompt creates the user message for marketing copy generation.
func buildCopyPrompt(b ai.Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write marketing copy for %s to run on %s.\n\n", b.ProductName, b.Platform.Label())
	fmt.Fprintf(&sb, "- Slogan: %q\n", b.Slogan)
	writeOptional(&sb, "Price", b.Price)
	writeOptional(&sb, "Target audience", b.Audience)
	writeOptional(&sb, "Brand colors", b.BrandColors)
	sb.WriteString(`
Return two to four sentences of plain text. Include the slogan verbatim. No hashtags, no emoji, no markdown.`)
	return sb.String()
}

// buildImagePrompt creates the image generation prompt for a brief.
func buildImagePrompt(b ai.Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a professional marketing image for %s with the following details:\n", b.ProductName)
	fmt.Fprintf(&sb, "- Slogan: %q\n", b.Slogan)
	writeOptional(&sb, "Price", b.Price)
	writeOptional(&sb, "Target audience", b.Audience)
	writeOptional(&sb, "Brand colors", b.BrandColors)
	fmt.Fprintf(&sb, `
The image should be optimized for %s with clear product visualization and an eye-catching design`, strings.ToLower(b.Platform.Label()))
	if b.BrandColors != "" {
		sb.WriteString(" that incorporates the brand colors")
	}
	sb.WriteString(`. Prominently display the slogan`)
	if b.Price != "" {
		sb.WriteString(" and price")
	}
	sb.WriteString(`. Make the text legible and keep the overall design polished and professional.`)
	return sb.String()
}

func writeOptional(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, value)
}
