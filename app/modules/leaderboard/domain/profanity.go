package leaderboarddomain

import (
	"strings"
	"unicode/utf8"
)

// NameCheck is the result of screening a username.
type NameCheck struct {
	Blocked bool
	Reason  string
}

// The reason is deliberately generic: callers must never learn which term
// matched, and clients must not be able to tell "offensive" from "taken".
const blockedReason = "username not available"

// CheckName screens a username before it is admitted to any leaderboard.
// Pure and deterministic: the raw lowercased name, a leetspeak-normalized
// candidate and an Arabizi-transliterated candidate are each matched against
// the term lists. Terms of three or more runes block on substring containment
// so obfuscated terms embedded in longer names are still caught; shorter
// terms block only on exact equality to avoid false positives on short
// legitimate names.
func CheckName(username string) NameCheck {
	raw := strings.ToLower(strings.TrimSpace(username))
	if raw == "" {
		return NameCheck{}
	}

	candidates := [3]string{raw, normalizeLeet(raw), normalizeArabizi(raw)}

	for _, list := range [][]string{englishTerms, arabicTerms, arabicLatinTerms} {
		for _, term := range list {
			if termMatches(term, candidates) {
				return NameCheck{Blocked: true, Reason: blockedReason}
			}
		}
	}
	return NameCheck{}
}

func termMatches(term string, candidates [3]string) bool {
	if utf8.RuneCountInString(term) >= 3 {
		for _, c := range candidates {
			if strings.Contains(c, term) {
				return true
			}
		}
		return false
	}
	for _, c := range candidates {
		if c == term {
			return true
		}
	}
	return false
}

// Homoglyph/leetspeak folding for the Latin-script list.
var leetRunes = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
	'+': 't',
}

func normalizeLeet(s string) string {
	return strings.Map(func(r rune) rune {
		if folded, ok := leetRunes[r]; ok {
			return folded
		}
		return r
	}, s)
}

// Arabizi digit transliteration. Digits stand in for Arabic letters with no
// Latin equivalent, so some map to digraphs.
var arabiziReplacer = strings.NewReplacer(
	"7", "h",
	"3", "a",
	"5", "kh",
	"6", "t",
	"8", "q",
	"2", "a",
)

func normalizeArabizi(s string) string {
	return arabiziReplacer.Replace(s)
}

// Term lists. All entries are lowercase; leet evasions that survive the rune
// folding above (letter substitutions, not digit substitutions) are folded
// into the English list directly.
var englishTerms = []string{
	"fuck",
	"fuk",
	"fck",
	"fock",
	"phuck",
	"shit",
	"bitch",
	"biatch",
	"cunt",
	"dick",
	"cock",
	"pussy",
	"asshole",
	"arsehole",
	"bastard",
	"whore",
	"slut",
	"wanker",
	"prick",
	"twat",
	"nigger",
	"nigga",
	"faggot",
	"fag",
}

var arabicTerms = []string{
	"كس",
	"طيز",
	"شرموط",
	"خرا",
	"زب",
	"عرص",
	"قحب",
	"منيك",
}

var arabicLatinTerms = []string{
	"khara",
	"kharah",
	"sharmoot",
	"sharmout",
	"teez",
	"tezak",
	"zebi",
	"koss",
	"kosom",
	"qahba",
	"kahba",
	"manyak",
	"ayre",
}
