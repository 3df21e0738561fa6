package chat

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAcceptableName(t *testing.T) {
	cases := map[string]bool{
		"Ann":      true,
		"Ann2":     true,
		"Ann22 ":   true,
		"Анна":     true,
		"Zed":      true,
		"2Ann":     false,
		"":         false,
		"  ":       false,
		"Ann 2":    false,
		"_Ann":     false,
		"Ann2b":    false,
		" Ann":     false,
		"Ann-Mary": false,
	}
	for name, want := range cases {
		require.Equal(t, want, IsAcceptableName(name), "name %q", name)
	}
}

func TestFromClientInput_Register(t *testing.T) {
	m := FromClientInput("/reg sender", "", 0)
	require.Equal(t, KindRegister, m.Kind)
	require.Equal(t, "sender", m.Sender)
	require.Empty(t, m.Addressee)
	require.Empty(t, m.Body)
}

func TestFromClientInput_RegisterReplacesSenderAndTruncates(t *testing.T) {
	m := FromClientInput("/reg  Abcdefghijklmnopqrst ", "Old", 0)
	require.Equal(t, KindRegister, m.Kind)
	require.Equal(t, "Abcdefghijklmno", m.Sender)

	m = FromClientInput("/reg Абвгдежзий", "Old", 5)
	require.Equal(t, "Абвгд", m.Sender)
}

func TestFromClientInput_Text(t *testing.T) {
	m := FromClientInput("message text", "sender", 0)
	require.Equal(t, Text("sender", "message text"), m)

	m = FromClientInput("x", "sender", 0)
	require.Equal(t, Text("sender", "x"), m)

	m = FromClientInput("@", "sender", 0)
	require.Equal(t, Text("sender", "@"), m)
}

func TestFromClientInput_Private(t *testing.T) {
	m := FromClientInput("@receiver message text", "sender", 0)
	require.Equal(t, KindPrivate, m.Kind)
	require.Equal(t, "sender", m.Sender)
	require.Equal(t, "receiver", m.Addressee)
	require.Equal(t, "message text", m.Body)

	m = FromClientInput("@receiver", "sender", 0)
	require.Equal(t, Private("sender", "receiver", ""), m)
}

func TestFromClientInput_Commands(t *testing.T) {
	require.Equal(t, ListRequest("me"), FromClientInput("/users", "me", 0))
	require.Equal(t, ExitRequest("me"), FromClientInput("/exit", "me", 0))
	require.Equal(t, ShutdownRequest("me"), FromClientInput("/terminate", "me", 0))
	require.Equal(t, Text("me", "/dance now"), FromClientInput("/dance now", "me", 0))
}

func TestStopSign(t *testing.T) {
	require.True(t, StopSign("bye", "Ann").IsStopSign())
	require.False(t, FromServerTo("bye", "Ann").IsStopSign())
	require.False(t, Text("", "bye").IsStopSign())
}

func TestWithAddresseeCopies(t *testing.T) {
	notice := FromServer("hello")
	addressed := notice.WithAddressee("Ann")
	require.Equal(t, "Ann", addressed.Addressee)
	require.Empty(t, notice.Addressee)
}

func TestMessageString(t *testing.T) {
	require.Equal(t, "Ann > hi", Text("Ann", "hi").String())
	require.Equal(t, ">>> Private message:\nAnn > hi", Private("Ann", "Bob", "hi").String())
	require.Equal(t, ">>> Server notice:\nhello", FromServerTo("hello", "Bob").String())
	require.Equal(t, "<LIST_REQUEST>\nAnn > ", ListRequest("Ann").String())
}

func TestRedactedHidesBody(t *testing.T) {
	m := Text("Ann", "secret").Redacted()
	require.NotContains(t, m.String(), "secret")
}

func TestKindJSON(t *testing.T) {
	raw, err := json.Marshal(StopSign("bye", "Ann"))
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"SERVER_NOTICE","addressee":"Ann","body":"bye","stop":true}`, string(raw))

	var m Message
	err = json.Unmarshal([]byte(`{"kind":"GOSSIP"}`), &m)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	require.NoError(t, w.WriteMessage(Text("Ann", "one")))
	require.NoError(t, w.WriteMessage(Private("Ann", "Bob", "two")))
	require.Equal(t, 2, strings.Count(buf.String(), "\n"))

	r := NewFrameReader(&buf)
	m, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, Text("Ann", "one"), m)
	m, err = r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, Private("Ann", "Bob", "two"), m)
	_, err = r.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
}

func TestFramingErrors(t *testing.T) {
	_, err := NewFrameReader(strings.NewReader("{not json}\n")).ReadMessage()
	require.True(t, IsFramingError(err))

	_, err = NewFrameReader(strings.NewReader(`{"kind":"NOPE"}` + "\n")).ReadMessage()
	require.True(t, IsFramingError(err))

	require.False(t, IsFramingError(io.ErrClosedPipe))
}
