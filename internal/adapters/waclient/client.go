package waclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"wabridge/internal/core/account"
	"wabridge/platform/logger"
)

const (
	identityRetries    = 5
	identityRetryDelay = 200 * time.Millisecond
)

// Adapter liga um cliente whatsmeow a exatamente uma conta e traduz os
// eventos nativos da biblioteca para o vocabulário do EventSink
type Adapter struct {
	accountID string
	client    *whatsmeow.Client
	sink      account.EventSink
	repo      account.Repository
	logger    *logger.Logger
	qrGen     *QRGenerator
	validator *JIDValidator
	mapper    *messageMapper

	mu      sync.Mutex
	stopQR  chan struct{}
	stopped bool
}

// Connect inicia a conexão com o WhatsApp.
// Dispositivo sem credenciais entra no fluxo de pareamento via QR code;
// dispositivo registrado reconecta direto.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.client.Store.ID == nil {
		qrChan, err := a.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}

		if err := a.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect to WhatsApp: %w", err)
		}

		go a.qrLoop(qrChan)

		a.logger.InfoWithFields("Pairing flow started", map[string]interface{}{
			"account_id": a.accountID,
		})
		return nil
	}

	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to WhatsApp: %w", err)
	}

	a.logger.InfoWithFields("Reconnecting registered device", map[string]interface{}{
		"account_id": a.accountID,
		"device_jid": a.client.Store.ID.String(),
	})
	return nil
}

// Disconnect encerra a conexão preservando credenciais
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.stopQR)
	a.mu.Unlock()

	a.client.Disconnect()

	a.logger.InfoWithFields("Adapter disconnected", map[string]interface{}{
		"account_id": a.accountID,
	})
}

// Logout invalida as credenciais do dispositivo e encerra a conexão
func (a *Adapter) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	a.Disconnect()
	return nil
}

// SendText envia mensagem de texto para um JID já resolvido
func (a *Adapter) SendText(ctx context.Context, target, body string) (*account.SendResult, error) {
	jid, err := a.validator.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", account.ErrInvalidTarget, err)
	}

	message := &waE2E.Message{
		Conversation: proto.String(body),
	}

	resp, err := a.client.SendMessage(ctx, jid, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send text message: %w", err)
	}

	a.logger.InfoWithFields("Text message sent", map[string]interface{}{
		"account_id": a.accountID,
		"to":         target,
		"message_id": resp.ID,
	})

	return &account.SendResult{
		MessageID: string(resp.ID),
		Timestamp: resp.Timestamp,
	}, nil
}

// SendMedia envia mídia já baixada para um JID já resolvido
func (a *Adapter) SendMedia(ctx context.Context, target string, data []byte, mimetype, filename, caption string) (*account.SendResult, error) {
	jid, err := a.validator.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", account.ErrInvalidTarget, err)
	}

	mediaType := mediaTypeFor(mimetype)
	uploaded, err := a.client.Upload(ctx, data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	message := buildMediaMessage(mediaType, uploaded, mimetype, filename, caption)

	resp, err := a.client.SendMessage(ctx, jid, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send media message: %w", err)
	}

	a.logger.InfoWithFields("Media message sent", map[string]interface{}{
		"account_id": a.accountID,
		"to":         target,
		"mimetype":   mimetype,
		"file_size":  len(data),
		"message_id": resp.ID,
	})

	return &account.SendResult{
		MessageID: string(resp.ID),
		Timestamp: resp.Timestamp,
	}, nil
}

// ===== EVENTOS =====

// handleEvent traduz eventos nativos do whatsmeow para o EventSink
func (a *Adapter) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		go a.notifyReady()

	case *events.PairSuccess:
		deviceJID := e.ID.ToNonAD().String()
		a.sink.OnAuthenticated(a.accountID, e.ID.User)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.repo.SetDeviceJID(ctx, a.accountID, deviceJID); err != nil {
			a.logger.ErrorWithFields("Failed to persist device JID", map[string]interface{}{
				"account_id": a.accountID,
				"device_jid": deviceJID,
				"error":      err.Error(),
			})
		}

	case *events.LoggedOut:
		a.sink.OnAuthFailure(a.accountID, fmt.Sprintf("logged out: %v", e.Reason))

	case *events.StreamError:
		a.sink.OnDisconnected(a.accountID, "stream error: "+e.Code)

	case *events.Disconnected:
		a.sink.OnDisconnected(a.accountID, "connection closed")

	case *events.Message:
		a.handleMessage(e)
	}
}

// notifyReady resolve a identidade própria e sinaliza prontidão.
// A identidade pode ficar indisponível por alguns instantes logo após a
// conexão, então tenta algumas vezes antes de desistir.
func (a *Adapter) notifyReady() {
	identity := ""
	for attempt := 0; attempt < identityRetries; attempt++ {
		if id := a.client.Store.ID; id != nil {
			identity = id.User
			break
		}
		time.Sleep(identityRetryDelay)
	}

	if identity == "" {
		a.logger.WarnWithFields("Connected without resolved identity", map[string]interface{}{
			"account_id": a.accountID,
		})
	}

	a.sink.OnReady(a.accountID, identity)
}

func (a *Adapter) handleMessage(evt *events.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	envelope := a.mapper.Map(ctx, evt)
	if envelope == nil {
		return
	}

	a.logger.DebugWithFields("Message received", map[string]interface{}{
		"account_id": a.accountID,
		"message_id": envelope.MessageID,
		"type":       describeMessage(envelope),
		"from_me":    envelope.FromMe,
	})

	a.sink.OnMessage(a.accountID, envelope)
}

// qrLoop consome o canal de QR codes do whatsmeow até o pareamento
// concluir, expirar ou o adapter ser derrubado
func (a *Adapter) qrLoop(qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-a.stopQR:
			return

		case evt, ok := <-qrChan:
			if !ok {
				return
			}

			switch evt.Event {
			case "code":
				image, err := a.qrGen.GenerateImage(evt.Code)
				if err != nil {
					a.logger.ErrorWithFields("Failed to render QR code image", map[string]interface{}{
						"account_id": a.accountID,
						"error":      err.Error(),
					})
				}
				a.qrGen.DisplayTerminal(evt.Code, a.accountID)
				a.sink.OnQR(a.accountID, evt.Code, image)

			case "success":
				// PairSuccess e Connected chegam pelo event handler.
				a.logger.InfoWithFields("QR code scanned", map[string]interface{}{
					"account_id": a.accountID,
				})
				return

			case "timeout":
				a.sink.OnDisconnected(a.accountID, "qr code timeout")
				return

			default:
				if evt.Error != nil {
					a.sink.OnAuthFailure(a.accountID, evt.Error.Error())
					return
				}
			}
		}
	}
}

// mediaTypeFor escolhe o tipo de upload do whatsmeow a partir do mimetype
func mediaTypeFor(mimetype string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimetype, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimetype, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

// buildMediaMessage monta a mensagem de mídia apropriada ao tipo
func buildMediaMessage(mediaType whatsmeow.MediaType, uploaded whatsmeow.UploadResponse, mimetype, filename, caption string) *waE2E.Message {
	switch mediaType {
	case whatsmeow.MediaImage:
		if mimetype == "" {
			mimetype = "image/jpeg"
		}
		return &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{
				Caption:       proto.String(caption),
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
			},
		}

	case whatsmeow.MediaVideo:
		if mimetype == "" {
			mimetype = "video/mp4"
		}
		return &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{
				Caption:       proto.String(caption),
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
			},
		}

	case whatsmeow.MediaAudio:
		if mimetype == "" {
			mimetype = "audio/ogg; codecs=opus"
		}
		return &waE2E.Message{
			AudioMessage: &waE2E.AudioMessage{
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
			},
		}

	default:
		if mimetype == "" {
			mimetype = "application/octet-stream"
		}
		return &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				Caption:       proto.String(caption),
				Title:         proto.String(filename),
				FileName:      proto.String(filename),
				URL:           &uploaded.URL,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				Mimetype:      &mimetype,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &uploaded.FileLength,
			},
		}
	}
}
