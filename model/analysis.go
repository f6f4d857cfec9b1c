package model

import "strings"

// Sentiment is the coarse tone of an interaction, derived from keyword
// counts. No free-form language understanding happens here; the tables are
// fixed business vocabulary.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

var positiveKeywords = []string{
	"interested", "love", "perfect", "excellent", "amazing", "great", "wonderful",
	"excited", "looking forward", "impressive", "beautiful", "fantastic",
}

var negativeKeywords = []string{
	"expensive", "too much", "not sure", "concerned", "worried", "hesitant",
	"maybe later", "thinking about it", "budget", "afford",
}

var intentKeywords = map[string][]string{
	"test_drive": {
		"test drive", "drive the car", "try it out", "take it for a spin",
	},
	"pricing": {
		"price", "cost", "how much", "payment", "financing",
		"monthly payment", "down payment", "pricing",
	},
	"appointment": {
		"schedule", "appointment", "visit", "come by", "showroom", "availability",
	},
	"purchase_ready": {
		"buy now", "ready to purchase", "want to buy", "make a deal",
		"close the deal", "ready to proceed",
	},
	"comparison": {
		"compare", "difference between", "versus", "which is better",
	},
	"trade_in": {
		"trade in", "trade-in", "sell my car", "part exchange",
	},
	"service": {
		"maintenance", "service", "warranty", "repair",
	},
}

// intentOrder keeps ExtractIntents deterministic; map iteration is not.
var intentOrder = []string{
	"test_drive", "pricing", "appointment", "purchase_ready",
	"comparison", "trade_in", "service",
}

// AnalyzeSentiment classifies interaction content as Positive, Negative or
// Neutral by comparing keyword hit counts.
func AnalyzeSentiment(content string) Sentiment {
	if content == "" {
		return SentimentNeutral
	}
	lower := strings.ToLower(content)

	positive, negative := 0, 0
	for _, k := range positiveKeywords {
		if strings.Contains(lower, k) {
			positive++
		}
	}
	for _, k := range negativeKeywords {
		if strings.Contains(lower, k) {
			negative++
		}
	}

	switch {
	case positive > negative && positive > 0:
		return SentimentPositive
	case negative > positive && negative > 0:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// ExtractIntents returns the distinct intents detected in the content, in a
// fixed order. Each intent is reported at most once.
func ExtractIntents(content string) []string {
	if content == "" {
		return nil
	}
	lower := strings.ToLower(content)

	var intents []string
	for _, intent := range intentOrder {
		for _, keyword := range intentKeywords[intent] {
			if strings.Contains(lower, keyword) {
				intents = append(intents, intent)
				break
			}
		}
	}
	return intents
}

// EngagementScore estimates conversation quality on a 0-100 scale from
// length, intent breadth, sentiment and question count.
func EngagementScore(content string) int {
	if content == "" {
		return 0
	}

	score := 0
	wordCount := len(strings.Fields(content))
	switch {
	case wordCount > 100:
		score += 30
	case wordCount > 50:
		score += 20
	default:
		score += 10
	}

	intents := len(ExtractIntents(content)) * 15
	if intents > 40 {
		intents = 40
	}
	score += intents

	switch AnalyzeSentiment(content) {
	case SentimentPositive:
		score += 20
	case SentimentNeutral:
		score += 10
	}

	questions := strings.Count(content, "?") * 5
	if questions > 10 {
		questions = 10
	}
	score += questions

	return ClampScore(score)
}

// Summarize produces a short summary of interaction content: the first
// sentence, truncated to maxLength.
func Summarize(content string, maxLength int) string {
	if content == "" {
		return ""
	}
	summary := content
	if idx := strings.Index(content, "."); idx >= 0 {
		summary = content[:idx+1]
	}
	if len(summary) > maxLength {
		summary = summary[:maxLength] + "..."
	}
	return strings.TrimSpace(summary)
}
