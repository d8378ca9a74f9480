package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain digits", raw: "1234567890", want: "1234567890@s.whatsapp.net"},
		{name: "formatted phone", raw: "+55 (11) 99999-0000", want: "5511999990000@s.whatsapp.net"},
		{name: "group jid verbatim", raw: "xyz@g.us", want: "xyz@g.us"},
		{name: "user jid verbatim", raw: "5511999990000@s.whatsapp.net", want: "5511999990000@s.whatsapp.net"},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace only", raw: "   ", wantErr: true},
		{name: "too short", raw: "1234567", wantErr: true},
		{name: "too long", raw: "1234567890123456", wantErr: true},
		{name: "no digits", raw: "abc", wantErr: true},
		{name: "missing user part", raw: "@g.us", wantErr: true},
		{name: "missing server part", raw: "xyz@", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTarget(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTarget)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendInputTargetPrecedence(t *testing.T) {
	// chatId explícito vence o número de telefone
	input := &SendMessageInput{PhoneNumber: "1234567890", ChatID: "abc@g.us"}
	target, err := input.Target()
	require.NoError(t, err)
	assert.Equal(t, "abc@g.us", target)

	input = &SendMessageInput{PhoneNumber: "1234567890"}
	target, err = input.Target()
	require.NoError(t, err)
	assert.Equal(t, "1234567890@s.whatsapp.net", target)
}

func TestIsGroupTarget(t *testing.T) {
	assert.True(t, IsGroupTarget("abc@g.us"))
	assert.False(t, IsGroupTarget("1234567890@s.whatsapp.net"))
}

func TestStatusExternal(t *testing.T) {
	assert.Equal(t, "WAITING", StatusQRGenerated.External())
	assert.Equal(t, "CONNECTED", StatusConnected.External())
	assert.Equal(t, "DISCONNECTED", StatusAuthFailed.External())
	assert.Equal(t, "DISCONNECTED", StatusDisconnected.External())
	assert.Equal(t, "INITIALIZING", StatusInitializing.External())
	assert.Equal(t, "AUTHENTICATED", StatusAuthenticated.External())
}
