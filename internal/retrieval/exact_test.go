package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/combot/ticketsearch/internal/ticket"
)

func TestDetectTicketKeys(t *testing.T) {
	cases := []struct {
		query string
		want  []string
	}{
		{"Getting error on ABC-1234 after upgrade", []string{"ABC-1234"}},
		{"compare PAY-1 with PAY-2 and pay-1 again", []string{"PAY-1", "PAY-2"}},
		{"lowercase shop-204 mention", []string{"SHOP-204"}},
		{"no keys in this query at all", nil},
		{"A-1 is too short a prefix", nil},
		{"OP5X-99 mixes digits into the prefix", []string{"OP5X-99"}},
		{"2fa-123 leads the prefix with a digit", []string{"2FA-123"}},
		{"UUID-like 123e4567-e89b should not match", nil},
		{"request id 550e8400-e29b-41d4-a716-446655440000 in trace", nil},
		{"upgrading from release-2024-10 broke it", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectTicketKeys(tc.query), "query %q", tc.query)
	}
}

func TestDetectTicketKeys_CapsAtThree(t *testing.T) {
	keys := DetectTicketKeys("AA-1 BB-2 CC-3 DD-4 EE-5")
	assert.Equal(t, []string{"AA-1", "BB-2", "CC-3"}, keys)
}

func TestKeyVariants(t *testing.T) {
	variants := keyVariants("ABC-1234", "saw abc-1234 and also Abc-1234 mentioned")
	assert.Equal(t, []string{"ABC-1234", "abc-1234", "Abc-1234"}, variants)

	// Already-uppercase mention adds nothing.
	variants = keyVariants("ABC-1234", "saw ABC-1234")
	assert.Equal(t, []string{"ABC-1234"}, variants)
}

func TestDedupeSignature(t *testing.T) {
	a := ticket.Chunk{
		Text:     "Summary: checkout fails on large carts. " + strings.Repeat("x", 200),
		Metadata: ticket.Metadata{TicketKey: "SHOP-204"},
	}
	// Same leading 120 chars fetched under a lowercase variant.
	b := a
	b.Metadata.TicketKey = "shop-204"

	assert.Equal(t, dedupeSignature(a), dedupeSignature(b))

	c := a
	c.Text = "Different text entirely"
	assert.NotEqual(t, dedupeSignature(a), dedupeSignature(c))
}
