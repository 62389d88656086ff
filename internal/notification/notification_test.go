package notification

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessagePlain(t *testing.T) {
	msg := string(buildMessage("noreply@marketplace.io", "buyer@example.com", "Order confirmed", "See you there", nil))

	assert.Contains(t, msg, "To: buyer@example.com")
	assert.Contains(t, msg, "Subject: Order confirmed")
	assert.Contains(t, msg, "Content-Type: text/plain")
	assert.Contains(t, msg, "See you there")
	assert.NotContains(t, msg, "multipart/mixed")
}

func TestBuildMessageWithAttachment(t *testing.T) {
	att := Attachment{Filename: "ticket.png", ContentType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47}}
	msg := string(buildMessage("noreply@marketplace.io", "buyer@example.com", "Your tickets", "Attached", []Attachment{att}))

	assert.Contains(t, msg, "multipart/mixed")
	assert.Contains(t, msg, `filename="ticket.png"`)
	assert.Contains(t, msg, "Content-Transfer-Encoding: base64")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(msg), "--mixed-a1b2c3d4--"))
}

func TestOrderQR(t *testing.T) {
	att, err := OrderQR("ord-123")
	require.NoError(t, err)

	assert.Equal(t, "order-ord-123.png", att.Filename)
	assert.Equal(t, "image/png", att.ContentType)
	// PNG magic bytes.
	require.GreaterOrEqual(t, len(att.Data), 4)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, att.Data[:4])
}
