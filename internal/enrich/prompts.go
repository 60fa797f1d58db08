package enrich

import "fmt"

func sentimentPrompt(title, content string) string {
	return fmt.Sprintf(`Analyze the sentiment of this news article.

Title: %s

Content: %s

Respond with a JSON object:
{"score": <float -1.0 to 1.0, negative to positive>, "confidence": <float 0.0 to 1.0>, "label": "positive"|"negative"|"neutral", "emotions": {<up to 3 dominant emotions as lowercase words, each mapped to its strength as a float 0.0 to 1.0>}}`, title, content)
}

func entitiesPrompt(title, content string) string {
	return fmt.Sprintf(`Extract the named entities mentioned in this news article.

Title: %s

Content: %s

Respond with a JSON object:
{"people": [...], "organizations": [...], "locations": [...], "technologies": [...], "other": [...]}

Use the canonical name for each entity and omit duplicates. Leave a group empty if nothing fits.`, title, content)
}

func keywordsPrompt(title, content string, max int) string {
	return fmt.Sprintf(`Identify up to %d topical keywords for this news article. Prefer specific multi-word topics over generic single words.

Title: %s

Content: %s

Respond with a JSON object:
{"keywords": [<lowercase keywords, most relevant first>]}`, max, title, content)
}

func readabilityPrompt(content string) string {
	return fmt.Sprintf(`Rate how easy this text is to read for a general audience on a 0-100 scale, where 100 is very easy and 0 is very difficult. Consider sentence length, vocabulary and jargon.

Text: %s

Respond with a JSON object:
{"score": <integer 0-100>}`, content)
}

func translatePrompt(title, summary, lang string) string {
	return fmt.Sprintf(`Translate this news headline and summary from %s into natural English. Preserve names and numbers exactly.

Title: %s

Summary: %s

Respond with a JSON object:
{"title": <translated title>, "summary": <translated summary>}`, lang, title, summary)
}
