package twofa

import (
	"regexp"
	"strings"

	"github.com/eduseek/eduseek/internal/models"
)

var twoDigitPattern = regexp.MustCompile(`\b(\d{2})\b`)

// Phrases that introduce the number the user must type into the authenticator
var targetPhrases = []string{
	"enter the number shown to sign in",
	"open your authenticator app",
}

// Numbers on these lines are decoys ("don't ask again for 14 days")
var exclusionPhrases = []string{
	"don't ask again for",
	"remember this device",
	"stay signed in",
}

var contextTerms = []string{
	"authenticator",
	"verification",
	"approve",
	"sign in",
}

// ExtractTwoDigitNumbers returns every standalone 2-digit number in text, in order
func ExtractTwoDigitNumbers(text string) []string {
	matches := twoDigitPattern.FindAllStringSubmatch(text, -1)
	numbers := make([]string, 0, len(matches))
	for _, m := range matches {
		numbers = append(numbers, m[1])
	}
	return numbers
}

// candidateClass is the classification of a number by its line context
type candidateClass int

const (
	classIgnored candidateClass = iota
	classExcluded
	classStrongSameLine
	classStrongFollowing
	classWeak
)

type candidate struct {
	code  string
	line  string
	class candidateClass
}

// SplitLines splits an element's text into trimmed non-empty lines
func SplitLines(block string) []string {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func normalizeLine(line string) string {
	// Curly apostrophes appear in rendered Microsoft pages
	return strings.ToLower(strings.ReplaceAll(line, "’", "'"))
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// classifyLine classifies numbers on lines[idx]. Exclusion beats every other class.
func classifyLine(lines []string, idx int) candidateClass {
	line := normalizeLine(lines[idx])
	switch {
	case containsAny(line, exclusionPhrases):
		return classExcluded
	case containsAny(line, targetPhrases):
		return classStrongSameLine
	case idx > 0 && containsAny(normalizeLine(lines[idx-1]), targetPhrases):
		return classStrongFollowing
	case containsAny(line, contextTerms):
		return classWeak
	}
	return classIgnored
}

func collectCandidates(blocks []string) []candidate {
	var candidates []candidate
	for _, block := range blocks {
		lines := SplitLines(block)
		for idx, line := range lines {
			numbers := ExtractTwoDigitNumbers(line)
			if len(numbers) == 0 {
				continue
			}
			class := classifyLine(lines, idx)
			for _, n := range numbers {
				candidates = append(candidates, candidate{code: n, line: line, class: class})
			}
		}
	}
	return candidates
}

// ScoreTextBlocks picks the 2FA number from visible element texts.
// Any same-line strong candidate wins, then the first following-line strong
// candidate, then the first weak candidate. Returns nil when nothing qualifies.
func ScoreTextBlocks(blocks []string) *models.TwoFactorChallenge {
	candidates := collectCandidates(blocks)

	pick := func(class candidateClass) *candidate {
		for i := range candidates {
			if candidates[i].class == class {
				return &candidates[i]
			}
		}
		return nil
	}

	if c := pick(classStrongSameLine); c != nil {
		return &models.TwoFactorChallenge{Code: c.code, Tier: models.TwoFactorTierStrongSame, Evidence: c.line}
	}
	if c := pick(classStrongFollowing); c != nil {
		return &models.TwoFactorChallenge{Code: c.code, Tier: models.TwoFactorTierStrongFollows, Evidence: c.line}
	}
	if c := pick(classWeak); c != nil {
		return &models.TwoFactorChallenge{Code: c.code, Tier: models.TwoFactorTierWeak, Evidence: c.line}
	}
	return nil
}
