/*
Copyright 2025 Leadflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Rule is a single scoring rule inside a RuleSet. Pattern is matched
// case-insensitively against interaction content; Weight may be negative.
// A non-zero FuzzyDrift (percent of pattern length) allows near-miss matches
// measured by levenshtein distance. Channels and the hour window restrict
// which interactions the rule applies to; zero values mean unrestricted.
type Rule struct {
	RuleID     string    `json:"rule_id"`
	Pattern    string    `json:"pattern"`
	Weight     int       `json:"weight"`
	Priority   int       `json:"priority"`
	FuzzyDrift float64   `json:"fuzzy_drift,omitempty"`
	Channels   []Channel `json:"channels,omitempty"`
	HourFrom   int       `json:"hour_from,omitempty"`
	HourTo     int       `json:"hour_to,omitempty"`
}

// Thresholds are the fixed classification cut points over the clamped score.
// They are part of the RuleSet version, never hardcoded in the engine.
type Thresholds struct {
	Warm int `json:"warm"`
	Hot  int `json:"hot"`
}

// RuleSet is an immutable, versioned collection of scoring rules. A new
// version never mutates an old one; LeadScore records pin the version used so
// historical scores stay reproducible as rules evolve.
type RuleSet struct {
	Version     int        `json:"version"`
	Rules       []Rule     `json:"rules"`
	DecayFactor float64    `json:"decay_factor"`
	Thresholds  Thresholds `json:"thresholds"`
	PublishedAt time.Time  `json:"published_at"`
}

// RuleContribution records one rule's contribution to a score, in match
// order. The ordered list forms the reproducibility trace of a LeadScore.
type RuleContribution struct {
	RuleID  string `json:"rule_id"`
	Weight  int    `json:"weight"`
	Matched string `json:"matched"`
	Offset  int    `json:"offset"`
}

type ruleMatch struct {
	rule    *Rule
	start   int
	end     int
	matched string
}

func (r *Rule) appliesTo(interaction *Interaction) bool {
	if len(r.Channels) > 0 {
		found := false
		for _, c := range r.Channels {
			if c == interaction.Channel {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.HourFrom == 0 && r.HourTo == 0 {
		return true
	}
	hour := interaction.OccurredAt.Hour()
	if r.HourFrom <= r.HourTo {
		return hour >= r.HourFrom && hour < r.HourTo
	}
	// Window wraps midnight, e.g. 20..6 for after-hours rules.
	return hour >= r.HourFrom || hour < r.HourTo
}

// matchesFuzzily reports whether two strings are within the allowable
// levenshtein drift, expressed as a percentage of the longer string.
func matchesFuzzily(str1, str2 string, allowableDrift float64) bool {
	distance := levenshtein.DistanceForStrings([]rune(str1), []rune(str2), levenshtein.DefaultOptions)
	maxLength := float64(len(str1))
	if len(str2) > len(str1) {
		maxLength = float64(len(str2))
	}
	maxAllowedDistance := int(maxLength * (allowableDrift / 100))
	return distance <= maxAllowedDistance
}

func (r *Rule) findMatches(content string) []ruleMatch {
	pattern := strings.ToLower(strings.TrimSpace(r.Pattern))
	if pattern == "" {
		return nil
	}
	var matches []ruleMatch
	if r.FuzzyDrift <= 0 {
		offset := 0
		for {
			idx := strings.Index(content[offset:], pattern)
			if idx < 0 {
				break
			}
			start := offset + idx
			matches = append(matches, ruleMatch{
				rule:    r,
				start:   start,
				end:     start + len(pattern),
				matched: content[start : start+len(pattern)],
			})
			offset = start + len(pattern)
		}
		return matches
	}

	// Fuzzy rules compare the pattern against word windows of the same
	// word count, so "shedule test drive" still matches "schedule test drive".
	patternWords := strings.Fields(pattern)
	words, starts := splitWords(content)
	n := len(patternWords)
	for i := 0; i+n <= len(words); i++ {
		window := strings.Join(words[i:i+n], " ")
		if matchesFuzzily(pattern, window, r.FuzzyDrift) {
			start := starts[i]
			end := starts[i+n-1] + len(words[i+n-1])
			matches = append(matches, ruleMatch{rule: r, start: start, end: end, matched: content[start:end]})
		}
	}
	return matches
}

func splitWords(content string) ([]string, []int) {
	var words []string
	var starts []int
	inWord := false
	start := 0
	for i, c := range content {
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			if inWord {
				words = append(words, content[start:i])
				starts = append(starts, start)
				inWord = false
			}
			continue
		}
		if !inWord {
			start = i
			inWord = true
		}
	}
	if inWord {
		words = append(words, content[start:])
		starts = append(starts, start)
	}
	return words, starts
}

// Evaluate runs the rule list against an interaction and returns the summed
// weight contribution plus the ordered rule trace.
//
// Overlapping matches on the same span are resolved deterministically: the
// longer literal wins, then the higher declared priority, then the lower rule
// ID. Each winning span contributes its rule's weight exactly once.
func (rs *RuleSet) Evaluate(interaction *Interaction) (int, []RuleContribution) {
	content := strings.ToLower(interaction.Content)

	var candidates []ruleMatch
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		if !rule.appliesTo(interaction) {
			continue
		}
		candidates = append(candidates, rule.findMatches(content)...)
	}

	// Specificity order: longest literal first, then priority, then rule ID.
	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].end-candidates[i].start, candidates[j].end-candidates[j].start
		if li != lj {
			return li > lj
		}
		if candidates[i].rule.Priority != candidates[j].rule.Priority {
			return candidates[i].rule.Priority > candidates[j].rule.Priority
		}
		if candidates[i].rule.RuleID != candidates[j].rule.RuleID {
			return candidates[i].rule.RuleID < candidates[j].rule.RuleID
		}
		return candidates[i].start < candidates[j].start
	})

	var accepted []ruleMatch
	for _, c := range candidates {
		overlaps := false
		for _, a := range accepted {
			if c.start < a.end && a.start < c.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	total := 0
	trace := make([]RuleContribution, 0, len(accepted))
	for _, m := range accepted {
		total += m.rule.Weight
		trace = append(trace, RuleContribution{
			RuleID:  m.rule.RuleID,
			Weight:  m.rule.Weight,
			Matched: m.matched,
			Offset:  m.start,
		})
	}
	return total, trace
}

// DecayPrior applies the time-decay multiplier to a prior score. Older signal
// counts less: the factor is applied once per full elapsed day.
func (rs *RuleSet) DecayPrior(priorScore int, elapsed time.Duration) int {
	if priorScore == 0 {
		return 0
	}
	days := int(elapsed.Hours() / 24)
	if days <= 0 {
		return priorScore
	}
	decayed := float64(priorScore) * math.Pow(rs.DecayFactor, float64(days))
	return int(math.Round(decayed))
}

// Classify maps a clamped score to a classification using this version's
// threshold table.
func (rs *RuleSet) Classify(score int) Classification {
	switch {
	case score >= rs.Thresholds.Hot:
		return ClassificationHot
	case score >= rs.Thresholds.Warm:
		return ClassificationWarm
	default:
		return ClassificationCold
	}
}

// DefaultRuleSet returns rule set version 1. The keyword tables and weights
// derive from the dealership's original scoring sheets; thresholds are
// Warm>=30 and Hot>=70 with a 0.9/day decay.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version:     1,
		DecayFactor: 0.9,
		Thresholds:  Thresholds{Warm: 30, Hot: 70},
		PublishedAt: time.Now(),
		Rules: []Rule{
			{RuleID: "hot_buy_now", Pattern: "buy now", Weight: 40, Priority: 10},
			{RuleID: "hot_ready_to_purchase", Pattern: "ready to purchase", Weight: 40, Priority: 10},
			{RuleID: "hot_schedule_test_drive", Pattern: "schedule test drive", Weight: 25, Priority: 10, FuzzyDrift: 15},
			{RuleID: "hot_book_appointment", Pattern: "book appointment", Weight: 25, Priority: 10},
			{RuleID: "hot_urgent", Pattern: "urgent", Weight: 20, Priority: 10},
			{RuleID: "hot_quote_needed", Pattern: "quote needed", Weight: 20, Priority: 10},
			{RuleID: "warm_test_drive", Pattern: "test drive", Weight: 20, Priority: 5},
			{RuleID: "warm_financing", Pattern: "financing", Weight: 15, Priority: 5},
			{RuleID: "warm_pricing", Pattern: "pricing", Weight: 10, Priority: 5},
			{RuleID: "warm_interested", Pattern: "interested", Weight: 10, Priority: 5},
			{RuleID: "warm_more_information", Pattern: "more information", Weight: 10, Priority: 5},
			{RuleID: "warm_compare_models", Pattern: "compare models", Weight: 10, Priority: 5},
			{RuleID: "warm_availability", Pattern: "availability", Weight: 10, Priority: 5},
			{RuleID: "cold_just_looking", Pattern: "just looking", Weight: -10, Priority: 1},
			{RuleID: "cold_not_serious", Pattern: "not serious", Weight: -15, Priority: 1},
			{RuleID: "cold_maybe_later", Pattern: "maybe later", Weight: -10, Priority: 1},
			{RuleID: "cold_researching", Pattern: "researching", Weight: -5, Priority: 1},
		},
	}
}
