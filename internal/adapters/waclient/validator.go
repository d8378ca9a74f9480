package waclient

import (
	"fmt"

	"go.mau.fi/whatsmeow/types"
)

// JIDValidator valida e converte destinos em JIDs do WhatsApp
type JIDValidator struct{}

// NewJIDValidator cria novo validador
func NewJIDValidator() *JIDValidator {
	return &JIDValidator{}
}

// Parse converte um destino já resolvido em types.JID
func (v *JIDValidator) Parse(target string) (types.JID, error) {
	if target == "" {
		return types.EmptyJID, fmt.Errorf("target cannot be empty")
	}

	jid, err := types.ParseJID(target)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("invalid JID format: %w", err)
	}

	if jid.User == "" {
		return types.EmptyJID, fmt.Errorf("JID has no user part: %s", target)
	}

	if jid.Server != types.DefaultUserServer &&
		jid.Server != types.GroupServer &&
		jid.Server != types.BroadcastServer {
		return types.EmptyJID, fmt.Errorf("invalid WhatsApp JID server: %s", jid.Server)
	}

	return jid, nil
}

