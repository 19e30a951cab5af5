package document

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/coi-audit/internal/model"
)

// policyKeywords are checked in order; workers compensation rows also
// mention "liability", so they come first.
var policyKeywords = []struct {
	policy  model.PolicyType
	pattern *regexp.Regexp
}{
	{model.PolicyWorkersCompensation, regexp.MustCompile(`(?i)\bworkers'?\s*'?\s*comp|\bemployers'?\s+liab`)},
	{model.PolicyGeneralLiability, regexp.MustCompile(`(?i)\bgeneral\s+liab|\bcgl\b|\bgen'?l\s+liab`)},
	{model.PolicyAutomobileLiability, regexp.MustCompile(`(?i)\bauto(mobile)?\s+liab|\bany\s+auto\b`)},
	{model.PolicyUmbrellaLiability, regexp.MustCompile(`(?i)\bumbrella\b|\bexcess\s+liab`)},
}

var datePattern = regexp.MustCompile(`(?i)\b(` +
	`\d{4}-\d{1,2}-\d{1,2}` +
	`|\d{1,2}/\d{1,2}/\d{2,4}` +
	`|\d{1,2}-\d{1,2}-\d{2,4}` +
	`|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}` +
	`)\b`)

// rowLookahead is how many following lines may carry the dates of a policy
// row whose label wrapped onto its own line.
const rowLookahead = 2

// ExtractCandidates scans certificate text for policy rows and returns one
// raw candidate per distinct (policy, effective, expiration) triple. The
// first two dates on a row are read as effective and expiration, matching
// the column order of standard certificates. Rows with a single date yield
// a candidate with the expiration left empty so the gap is reported.
func ExtractCandidates(text, source string) ([]model.RawDateCandidate, []string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		out   []model.RawDateCandidate
		notes []string
		seen  = make(map[string]bool)
	)
	for i, line := range lines {
		policy, ok := policyFor(line)
		if !ok {
			continue
		}

		dates := datePattern.FindAllString(line, -1)
		for j := 1; len(dates) < 2 && j <= rowLookahead && i+j < len(lines); j++ {
			next := lines[i+j]
			if _, other := policyFor(next); other {
				break
			}
			dates = append(dates, datePattern.FindAllString(next, -1)...)
		}
		if len(dates) == 0 {
			continue
		}

		c := model.RawDateCandidate{
			PolicyType: policy,
			Effective:  dates[0],
			Source:     source,
			Note:       "line " + strconv.Itoa(i+1) + ": " + strings.Join(strings.Fields(line), " "),
		}
		if len(dates) >= 2 {
			c.Expiration = dates[1]
		} else {
			notes = append(notes, policy.Label()+" row on line "+strconv.Itoa(i+1)+" carries a single date")
		}

		key := string(c.PolicyType) + "|" + c.Effective + "|" + c.Expiration
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out, notes
}

func policyFor(line string) (model.PolicyType, bool) {
	for _, k := range policyKeywords {
		if k.pattern.MatchString(line) {
			return k.policy, true
		}
	}
	return "", false
}
