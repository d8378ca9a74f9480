package waclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wabridge/internal/core/account"
	"wabridge/platform/logger"
)

// chatClient é o recorte do cliente whatsmeow que o mapper usa
type chatClient interface {
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	GetGroupInfo(jid types.JID) (*types.GroupInfo, error)
}

// messageMapper traduz eventos de mensagem do whatsmeow em envelopes
// normalizados. Toda a inspeção da estrutura crua acontece aqui; o resto
// do sistema só enxerga o envelope.
type messageMapper struct {
	accountID string
	client    chatClient
	selfJID   func() *types.JID
	logger    *logger.Logger

	subjectsMu sync.Mutex
	subjects   map[string]string
}

func newMessageMapper(accountID string, client *whatsmeow.Client, log *logger.Logger) *messageMapper {
	return &messageMapper{
		accountID: accountID,
		client:    client,
		selfJID:   func() *types.JID { return client.Store.ID },
		logger:    log,
		subjects:  make(map[string]string),
	}
}

// Map constrói o envelope normalizado de um evento de mensagem.
// Falha no download de mídia não descarta o envelope: ele segue sem o
// campo de mídia para que o encaminhamento ao webhook sempre aconteça.
func (m *messageMapper) Map(ctx context.Context, evt *events.Message) *account.MessageEnvelope {
	msg := unwrapMessage(evt.Message)
	if msg == nil {
		return nil
	}

	ownJID := ""
	if id := m.selfJID(); id != nil {
		ownJID = id.ToNonAD().String()
	}

	envelope := &account.MessageEnvelope{
		AccountID: m.accountID,
		MessageID: evt.Info.ID,
		Author:    evt.Info.Sender.ToNonAD().String(),
		Timestamp: evt.Info.Timestamp.Unix(),
		FromMe:    evt.Info.IsFromMe,
		IsGroup:   evt.Info.IsGroup,
		PushName:  evt.Info.PushName,
	}

	chat := evt.Info.Chat.String()
	if evt.Info.IsFromMe {
		envelope.From = ownJID
		envelope.To = chat
	} else {
		envelope.From = chat
		envelope.To = ownJID
	}

	if evt.Info.IsGroup {
		envelope.ChatName = m.groupSubject(evt.Info.Chat)
	}

	switch {
	case msg.GetConversation() != "":
		envelope.Type = "text"
		envelope.Body = msg.GetConversation()

	case msg.GetExtendedTextMessage().GetText() != "":
		envelope.Type = "text"
		envelope.Body = msg.GetExtendedTextMessage().GetText()

	case msg.GetImageMessage() != nil:
		part := msg.GetImageMessage()
		envelope.Type = "image"
		envelope.Body = part.GetCaption()
		envelope.Media = m.downloadMedia(ctx, part, part.GetMimetype(), "")

	case msg.GetVideoMessage() != nil:
		part := msg.GetVideoMessage()
		envelope.Type = "video"
		envelope.Body = part.GetCaption()
		envelope.Media = m.downloadMedia(ctx, part, part.GetMimetype(), "")

	case msg.GetAudioMessage() != nil:
		part := msg.GetAudioMessage()
		envelope.Type = "audio"
		envelope.Media = m.downloadMedia(ctx, part, part.GetMimetype(), "")

	case msg.GetDocumentMessage() != nil:
		part := msg.GetDocumentMessage()
		envelope.Type = "document"
		envelope.Body = part.GetCaption()
		envelope.Media = m.downloadMedia(ctx, part, part.GetMimetype(), part.GetFileName())

	case msg.GetStickerMessage() != nil:
		part := msg.GetStickerMessage()
		envelope.Type = "sticker"
		envelope.Media = m.downloadMedia(ctx, part, part.GetMimetype(), "")

	case msg.GetLocationMessage() != nil:
		part := msg.GetLocationMessage()
		envelope.Type = "location"
		envelope.Location = &account.LocationPayload{
			Latitude:  part.GetDegreesLatitude(),
			Longitude: part.GetDegreesLongitude(),
			Name:      part.GetName(),
			Address:   part.GetAddress(),
		}

	case msg.GetContactMessage() != nil:
		part := msg.GetContactMessage()
		envelope.Type = "contact"
		envelope.Body = part.GetVcard()
		envelope.PushName = part.GetDisplayName()

	default:
		// Reações, revogações e afins não interessam ao sistema externo.
		return nil
	}

	return envelope
}

// groupSubject resolve o assunto do grupo, com cache por chat.
// Falha na consulta vira log; o envelope segue sem o nome.
func (m *messageMapper) groupSubject(chat types.JID) string {
	key := chat.String()

	m.subjectsMu.Lock()
	subject, ok := m.subjects[key]
	m.subjectsMu.Unlock()
	if ok {
		return subject
	}

	info, err := m.client.GetGroupInfo(chat)
	if err != nil {
		m.logger.WarnWithFields("Failed to resolve group subject", map[string]interface{}{
			"account_id": m.accountID,
			"chat":       key,
			"error":      err.Error(),
		})
		return ""
	}

	m.subjectsMu.Lock()
	m.subjects[key] = info.Name
	m.subjectsMu.Unlock()
	return info.Name
}

// downloadMedia baixa a mídia e devolve o payload em base64.
// Em caso de falha retorna nil e registra o erro.
func (m *messageMapper) downloadMedia(ctx context.Context, part whatsmeow.DownloadableMessage, mimetype, filename string) *account.MediaPayload {
	data, err := m.client.Download(ctx, part)
	if err != nil {
		m.logger.ErrorWithFields("Failed to download media, forwarding without payload", map[string]interface{}{
			"account_id": m.accountID,
			"mimetype":   mimetype,
			"error":      err.Error(),
		})
		return nil
	}

	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	return &account.MediaPayload{
		Mimetype: mimetype,
		Filename: filename,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// unwrapMessage remove camadas efêmeras e de visualização única
func unwrapMessage(msg *waE2E.Message) *waE2E.Message {
	if msg == nil {
		return nil
	}
	if inner := msg.GetEphemeralMessage().GetMessage(); inner != nil {
		return inner
	}
	if inner := msg.GetViewOnceMessage().GetMessage(); inner != nil {
		return inner
	}
	return msg
}

// describeMessage resume o tipo da mensagem para logs
func describeMessage(envelope *account.MessageEnvelope) string {
	if envelope == nil {
		return "ignored"
	}
	if envelope.Media != nil {
		return fmt.Sprintf("%s (%s)", envelope.Type, envelope.Media.Mimetype)
	}
	return envelope.Type
}
