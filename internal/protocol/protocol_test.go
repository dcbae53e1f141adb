package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

func TestDecode_SendMessage(t *testing.T) {
	raw := []byte(`{"type":"sendMessage","senderId":"a","receiverId":"b","content":"hi","timestamp":"2024-01-02T03:04:05Z","clientMessageId":"c-1"}`)

	in, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeSendMessage, in.Type)
	assert.Equal(t, "b", in.ReceiverID)
	assert.Equal(t, "c-1", in.ClientMessageID)
	require.NotNil(t, in.Timestamp)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), in.Timestamp.UTC())
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestFrames(t *testing.T) {
	m := chat.Message{ID: "m1", SenderID: "a", ReceiverID: "b", Content: "hi", CreatedAt: time.Unix(100, 0).UTC()}

	var out Outbound
	require.NoError(t, json.Unmarshal(SentFrame(m, "c-1"), &out))
	assert.Equal(t, TypeMessageSent, out.Type)
	assert.Equal(t, "c-1", out.ClientMessageID)
	require.NotNil(t, out.Message)
	assert.Equal(t, m, *out.Message)

	out = Outbound{}
	require.NoError(t, json.Unmarshal(ErrorFrame("boom", ""), &out))
	assert.Equal(t, TypeMessageError, out.Type)
	assert.Equal(t, "boom", out.Reason)

	assert.JSONEq(t, `{"type":"presenceUpdate","online":[]}`, string(PresenceFrame(nil)))
	assert.JSONEq(t, `{"type":"presenceUpdate","online":["a","b"]}`, string(PresenceFrame([]string{"a", "b"})))
	assert.JSONEq(t, `{"type":"read","readerId":"b","count":2}`, string(ReadFrame("b", 2)))
}
