package rag

import (
	"context"
	"regexp"
	"strings"
)

// UntitledChat is the title used when none can be generated.
const UntitledChat = "Untitled Chat"

// identifierWordRe matches words that usually carry record identifiers.
var identifierWordRe = regexp.MustCompile(`(?i)\b(order|truck)\S*`)

const titlePrompt = "Generate a short 3-5 word chat title for this message. Avoid numbers or IDs."

// CleanTitleInput drops order*/truck* words so identifiers do not leak into titles.
func CleanTitleInput(message string) string {
	return strings.Join(strings.Fields(identifierWordRe.ReplaceAllString(message, "")), " ")
}

// Title asks gen for a short chat title. Any failure yields UntitledChat.
func Title(ctx context.Context, gen Generator, message string) string {
	if gen == nil {
		return UntitledChat
	}
	cleaned := CleanTitleInput(message)
	if cleaned == "" {
		return UntitledChat
	}
	out, err := gen.Generate(ctx, titlePrompt+"\n\nMessage:\n"+cleaned+"\n\nTitle:", nil)
	if err != nil {
		return UntitledChat
	}
	out = strings.Trim(strings.TrimSpace(out), `"'`)
	if out == "" {
		return UntitledChat
	}
	return out
}
