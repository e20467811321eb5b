package intel

import (
	"fmt"
	"strings"
)

// TranslatePrompt asks for an English rendering of markdown text.
func TranslatePrompt(text string) string {
	return "You are a professional translator. Translate the following Markdown into English only. " +
		"Keep the Markdown formatting and link URLs unchanged and leave reference identifiers such as [img-1] untouched. " +
		"The output must not contain any Chinese characters. Reply with the translated Markdown and nothing else.\n\n" +
		text
}

// ClassifyPrompt asks for categories and tags as a JSON object.
func ClassifyPrompt(title, body string) string {
	return "You are a taxonomy assistant. From the English Markdown title and body below, " +
		"propose 1-3 broad categories and 4-8 short tags. " +
		"Reply ONLY with a compact JSON object with the keys \"categories\" and \"tags\". " +
		"Every value must be English without Chinese characters.\n\n" +
		"Title: " + title + "\n\nBody:\n" + body + "\n"
}

// KeywordsPrompt asks for a JSON array of at most limit SEO keywords.
func KeywordsPrompt(title, body string, limit int) string {
	return fmt.Sprintf("You are an SEO assistant. From the English Markdown title and body below, "+
		"extract up to %d concise English keywords. "+
		"Reply ONLY with a compact JSON array of strings. "+
		"Keywords must be English words or phrases, unique, with no punctuation other than hyphens and no Chinese characters.\n\n"+
		"Title: %s\n\nBody:\n%s\n", limit, title, body)
}

// ChoosePrompt asks the model to pick one of options for term.
func ChoosePrompt(term string, options []string, label string) string {
	return "You are a taxonomy assistant. Pick the single closest " + label + " for the term from the options.\n" +
		"Term: " + term + "\n" +
		"Options (one per line):\n" + strings.Join(options, "\n") + "\n\n" +
		"Reply with ONLY the chosen option text."
}
