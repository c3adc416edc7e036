package ingestion

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
)

const (
	// nameScanLines is how many non-blank lines are considered when looking for a name
	nameScanLines = 10
	minNameLength = 2
	maxNameLength = 60
	maxNameTokens = 4
)

var (
	documentHeader = regexp.MustCompile(`(?i)^(resume|cv|curriculum|vitae|bio|biography)$`)
	sectionHeading = regexp.MustCompile(`(?i)^(profile|summary|objective|experience|education|skills|contact|phone|email|address|career|professional|personal|about|overview)`)
	nameToken      = regexp.MustCompile(`^[A-Za-z]+(['-]?[A-Za-z]+)*$`)
	startsUpper    = regexp.MustCompile(`^[A-Z]`)
	startsDigit    = regexp.MustCompile(`^[0-9]`)

	// Tried in order against the sender address. The last one splits a single
	// run of letters at an arbitrary point and is kept for compatibility.
	emailNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^([a-z]+)\.([a-z]+)@`),
		regexp.MustCompile(`(?i)^([a-z]+)_([a-z]+)@`),
		regexp.MustCompile(`(?i)^([a-z]+)([a-z]+)@`),
	}
	singleNamePattern = regexp.MustCompile(`(?i)^([a-z]+)@`)
)

// Resolve infers the candidate's display name from the CV text, falling back
// to the sender address. The returned email is always fallbackEmail.
func Resolve(text, fallbackEmail string) models.CandidateIdentity {
	name := nameFromText(text)
	if name == "" {
		name = nameFromEmail(fallbackEmail)
	}
	if name == "" {
		name = models.UnknownCandidate
	}

	return models.CandidateIdentity{Name: name, Email: fallbackEmail}
}

func nameFromText(text string) string {
	scanned := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if scanned == nameScanLines {
			break
		}
		scanned++

		if documentHeader.MatchString(line) {
			continue
		}
		if looksLikeName(line) {
			return line
		}
	}

	return ""
}

func looksLikeName(line string) bool {
	length := utf8.RuneCountInString(line)
	if length < minNameLength || length > maxNameLength {
		return false
	}

	words := strings.Fields(line)
	if len(words) == 0 || len(words) > maxNameTokens {
		return false
	}

	if !startsUpper.MatchString(line) ||
		sectionHeading.MatchString(line) ||
		strings.Contains(line, "@") ||
		strings.Contains(line, "http") ||
		startsDigit.MatchString(line) ||
		strings.ContainsAny(line, "()[]{}") {
		return false
	}

	for _, w := range words {
		if !nameToken.MatchString(w) {
			return false
		}
	}

	return true
}

func nameFromEmail(email string) string {
	for _, pattern := range emailNamePatterns {
		if m := pattern.FindStringSubmatch(email); m != nil {
			return titleCase(m[1]) + " " + titleCase(m[2])
		}
	}

	if m := singleNamePattern.FindStringSubmatch(email); m != nil && len(m[1]) > 2 {
		return titleCase(m[1])
	}

	return ""
}

// titleCase upper-cases the first rune and lower-cases the rest
func titleCase(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
}
