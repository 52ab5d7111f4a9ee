package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "Hallo "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "Welt"},
		},
	}
	assert.Equal(t, "Hallo Welt", resp.Text())
}

func TestMessageResponse_TextEmpty(t *testing.T) {
	resp := &MessageResponse{}
	assert.Empty(t, resp.Text())
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})

	require.Len(t, msgs, 2)
}
