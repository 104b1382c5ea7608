package parser

import (
	"regexp"
	"strings"

	"github.com/pathakanu/nhacnho/internal/model"
)

var (
	atHourRe      = regexp.MustCompile(`(?i)lúc\s+\d{1,2}h(?:\s*(?:sáng|chiều))?`)
	bareHourRe    = regexp.MustCompile(`(?i)\d{1,2}h(?:\s*(?:sáng|chiều))?`)
	dailyRe       = regexp.MustCompile(`(?i)mỗi\s+ngày`)
	weeklyRe      = regexp.MustCompile(`(?i)mỗi\s+tuần`)
	participantRe = regexp.MustCompile(`(?i)(?:^|\s)với\s+(\S+)`)
)

// labelPatterns are stripped in this order on every pass.
var labelPatterns = []*regexp.Regexp{
	dateRe,
	tomorrowRe,
	todayRe,
	atHourRe,
	bareHourRe,
	dailyRe,
	weeklyRe,
	participantRe,
}

// ExtractLabel removes every time, recurrence and participant phrase from
// text. Stripping repeats until nothing changes, so ExtractLabel applied to
// its own output is a no-op. An empty result falls back to the first token
// of the message.
func ExtractLabel(text string) string {
	text = Normalize(text)

	// Every pass that changes the label shortens it, so this terminates.
	label := text
	for {
		next := stripOnce(label)
		if next == label {
			break
		}
		label = next
	}

	if label == "" {
		if fields := strings.Fields(text); len(fields) > 0 {
			return fields[0]
		}
	}
	return label
}

func stripOnce(s string) string {
	for _, re := range labelPatterns {
		s = re.ReplaceAllString(s, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// ExtractRecurrence returns daily for "mỗi ngày", weekly for "mỗi tuần",
// none otherwise. Daily wins when both appear.
func ExtractRecurrence(text string) model.Recurrence {
	text = Normalize(text)
	switch {
	case dailyRe.MatchString(text):
		return model.RecurrenceDaily
	case weeklyRe.MatchString(text):
		return model.RecurrenceWeekly
	}
	return model.RecurrenceNone
}

// ExtractParticipants returns the single token after "với". Lists such as
// "với An và Bình" yield only the first name.
func ExtractParticipants(text string) []string {
	match := participantRe.FindStringSubmatch(Normalize(text))
	if match == nil {
		return []string{}
	}
	return []string{strings.TrimSpace(match[1])}
}
