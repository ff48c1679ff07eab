package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	contextSeparator = "\n\n---\n\n"
	ellipsis         = "..."
	noContent        = "No content"
	noTags           = "No tags"
	noPreview        = "No content preview available"
)

func noContextPrompt(query string) string {
	return fmt.Sprintf(`The user asked: "%s"

I don't have specific notes from their knowledge base to reference. Please provide a helpful, friendly response that:
1. Acknowledges their question
2. Provides a brief, general answer if possible
3. Suggests they create notes about this topic for future reference

Keep the response concise and helpful.`, query)
}

func greetingPrompt(query string) string {
	return fmt.Sprintf(`The user said: "%s"

Please provide a friendly, helpful greeting and briefly explain what you can help them with. Mention that you can:
- Answer questions based on their notes
- Help them search through their knowledge base
- Provide summaries and insights
- Create flashcards from their notes

Keep it warm and concise.`, query)
}

func informativePrompt(query, contextBlock string) string {
	return fmt.Sprintf(`Based on the following notes from the user's knowledge base, please answer their question: "%s"

Context from user's notes:
%s

Instructions:
1. Answer the specific question asked - DO NOT just repeat the entire note content
2. Extract only the relevant information that answers the question
3. Be concise and direct
4. If the answer is a specific fact (like a date, name, or event), provide just that fact
5. If the notes don't contain the answer, say so clearly

Please provide a focused answer based only on what's relevant to the question.`, query, contextBlock)
}

func summarizePrompt(title, content string) string {
	return fmt.Sprintf(`Please provide a concise summary of the following note:

Title: %s
Content: %s

Summary:`, title, content)
}

func flashcardsPrompt(title, content string) string {
	return fmt.Sprintf(`Based on the following note, create 3-5 flashcard questions and answers that would help someone study this material:

Title: %s
Content: %s

Please format as:
Q: [Question]
A: [Answer]

Flashcards:`, title, content)
}

// buildContext renders the notes as the context block of the informative prompt.
// Each body is cut to maxChars runes.
func buildContext(notes []ScoredNote, maxChars int) string {
	parts := make([]string, 0, len(notes))
	for _, sn := range notes {
		body := firstNonEmpty(sn.Note.Content, sn.Note.ExtractedText)
		if body == "" {
			body = noContent
		} else {
			body = truncate(body, maxChars)
		}

		tags := noTags
		if len(sn.Note.Tags) > 0 {
			tags = strings.Join(sn.Note.Tags, ", ")
		}

		parts = append(parts, fmt.Sprintf("Title: %s\nContent: %s\nTags: %s", sn.Note.Title, body, tags))
	}
	return strings.Join(parts, contextSeparator)
}

// truncate cuts s to maxChars runes and marks the cut with an ellipsis.
func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars]) + ellipsis
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
