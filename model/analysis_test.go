package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeSentiment(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Sentiment
	}{
		{"positive", "I love this car, the interior is beautiful", SentimentPositive},
		{"negative", "it feels expensive and I'm not sure about the budget", SentimentNegative},
		{"neutral", "what time do you open tomorrow", SentimentNeutral},
		{"mixed leans positive", "great car but expensive, still excited and interested", SentimentPositive},
		{"empty", "", SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeSentiment(tt.content))
		})
	}
}

func TestExtractIntents(t *testing.T) {
	intents := ExtractIntents("Can I schedule a test drive? Also how much is the monthly payment?")

	assert.Equal(t, []string{"test_drive", "pricing", "appointment"}, intents)
}

func TestExtractIntentsDeduplicates(t *testing.T) {
	intents := ExtractIntents("price price price, what's the cost and how much")

	assert.Equal(t, []string{"pricing"}, intents)
}

func TestExtractIntentsEmpty(t *testing.T) {
	assert.Nil(t, ExtractIntents(""))
	assert.Empty(t, ExtractIntents("hello there"))
}

func TestEngagementScoreBounds(t *testing.T) {
	assert.Equal(t, 0, EngagementScore(""))

	short := EngagementScore("hi")
	assert.GreaterOrEqual(t, short, 10)

	rich := EngagementScore("I love this car and want to schedule a test drive. How much is the " +
		"monthly payment? Can I trade in my old sedan? Is the warranty transferable?")
	assert.Greater(t, rich, short)
	assert.LessOrEqual(t, rich, 100)
}

func TestSummarize(t *testing.T) {
	content := "The customer came in asking about the new electric model and wanted to know about charging infrastructure"

	summary := Summarize(content, 50)

	assert.LessOrEqual(t, len(summary), 53)
	assert.NotEqual(t, content, summary)

	// The first sentence is the summary when one exists.
	assert.Equal(t, "Asked about pricing.", Summarize("Asked about pricing. Will come back saturday.", 50))

	assert.Equal(t, "short note", Summarize("short note", 50))
	assert.Equal(t, "", Summarize("", 50))
}
