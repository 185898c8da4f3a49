package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/knownav/knownav/pkg/domain"
)

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "tags and entities collapse",
			body:     "<p>Hello&nbsp;  world</p>",
			expected: "Hello world",
		},
		{
			name:     "plain text untouched",
			body:     "just plain text",
			expected: "just plain text",
		},
		{
			name:     "nested markup",
			body:     "<div><b>Breaking</b>: <a href=\"https://example.com\">new release</a></div>",
			expected: "Breaking: new release",
		},
		{
			name:     "script content dropped",
			body:     "before<script>alert('x')</script> after",
			expected: "before after",
		},
		{
			name:     "whitespace runs collapsed",
			body:     "one\n\ttwo   three\r\nfour",
			expected: "one two three four",
		},
		{
			name:     "html entities decoded",
			body:     "a &amp; b &lt;c&gt;",
			expected: "a & b <c>",
		},
		{
			name:     "empty body",
			body:     "",
			expected: "",
		},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned, _ := n.Normalize(domain.RawEntry{Body: tt.body})
			assert.Equal(t, tt.expected, cleaned)
		})
	}
}

func TestNormalizer_PublishedAt(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	n := NewNormalizer()
	n.now = func() time.Time { return fixedNow }

	t.Run("feed timestamp preserved", func(t *testing.T) {
		published := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
		_, got := n.Normalize(domain.RawEntry{Body: "text", Published: &published})
		assert.Equal(t, published, got)
	})

	t.Run("missing timestamp defaults to processing time", func(t *testing.T) {
		_, got := n.Normalize(domain.RawEntry{Body: "text"})
		assert.Equal(t, fixedNow, got)
	})
}

func TestNormalizer_Idempotent(t *testing.T) {
	n := NewNormalizer()
	first, _ := n.Normalize(domain.RawEntry{Body: "<p>Some  <i>styled</i>&nbsp;text</p>"})
	second, _ := n.Normalize(domain.RawEntry{Body: first})
	assert.Equal(t, first, second)
}
