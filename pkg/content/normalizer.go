package content

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/knownav/knownav/pkg/domain"
)

// Normalizer strips markup from raw entry bodies and fills in publish
// timestamps. Output never contains raw markup delimiters.
type Normalizer struct {
	policy *bluemonday.Policy
	now    func() time.Time
}

// NewNormalizer creates a normalizer with the strict sanitization policy
func NewNormalizer() *Normalizer {
	return &Normalizer{
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
	}
}

// Normalize cleans the entry body and resolves its publish time. A missing
// publish time defaults to the current processing time; feeds frequently
// omit or malform dates, so this is policy, not an error.
func (n *Normalizer) Normalize(entry domain.RawEntry) (cleanedBody string, publishedAt time.Time) {
	cleanedBody = CleanText(n.policy, entry.Body)

	if entry.Published != nil {
		publishedAt = *entry.Published
	} else {
		publishedAt = n.now()
	}
	return cleanedBody, publishedAt
}

// CleanText removes all tags, decodes entities and collapses runs of
// whitespace to single spaces.
func CleanText(policy *bluemonday.Policy, s string) string {
	stripped := policy.Sanitize(s)
	unescaped := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(unescaped), " ")
}
