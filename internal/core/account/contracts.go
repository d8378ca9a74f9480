package account

import (
	"context"
	"time"
)

// Adapter abstrai uma conexão WhatsApp de uma única conta.
// Implementações reportam eventos de ciclo de vida através do EventSink
// recebido na criação.
type Adapter interface {
	// Connect inicia a conexão; dispara pareamento via QR quando não há
	// credenciais persistidas para a conta.
	Connect(ctx context.Context) error

	// SendText envia uma mensagem de texto para um JID já resolvido.
	SendText(ctx context.Context, target, body string) (*SendResult, error)

	// SendMedia envia mídia já baixada para um JID já resolvido.
	SendMedia(ctx context.Context, target string, data []byte, mimetype, filename, caption string) (*SendResult, error)

	// Disconnect encerra a conexão preservando credenciais.
	Disconnect()

	// Logout encerra a conexão e invalida as credenciais do dispositivo.
	Logout(ctx context.Context) error
}

// AdapterFactory cria adapters ligados a um EventSink
type AdapterFactory interface {
	NewAdapter(ctx context.Context, accountID string, sink EventSink) (Adapter, error)
}

// EventSink recebe eventos normalizados do ciclo de vida de uma conta
type EventSink interface {
	OnQR(accountID, code, pngBase64 string)
	OnAuthenticated(accountID, identity string)
	OnReady(accountID, identity string)
	OnAuthFailure(accountID, reason string)
	OnDisconnected(accountID, reason string)
	OnMessage(accountID string, envelope *MessageEnvelope)
}

// StatusSink publica transições de status para o sistema externo.
// Implementações são fire-and-forget: falhas são registradas, nunca propagadas.
type StatusSink interface {
	PushStatus(ctx context.Context, update *StatusUpdate)
}

// MessageSink entrega envelopes de mensagens ao sistema externo
type MessageSink interface {
	ForwardMessage(ctx context.Context, envelope *MessageEnvelope) error
}

// MediaFetcher baixa mídia referenciada por URL em requisições de envio
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, mimetype string, err error)
}

// Repository persiste o vínculo entre contas e dispositivos WhatsApp
type Repository interface {
	Save(ctx context.Context, accountID, referencePhone string) error
	SetDeviceJID(ctx context.Context, accountID, deviceJID string) error
	GetDeviceJID(ctx context.Context, accountID string) (string, error)
	Delete(ctx context.Context, accountID string) error
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// ManagerConfig parâmetros de comportamento do Manager
type ManagerConfig struct {
	// TeardownGrace pausa entre derrubar um adapter antigo e criar o novo
	// durante uma reinicialização.
	TeardownGrace time.Duration

	// QRTTL validade reportada para cada QR code gerado.
	QRTTL time.Duration
}

// DefaultManagerConfig valores padrão do Manager
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		TeardownGrace: 1 * time.Second,
		QRTTL:         2 * time.Minute,
	}
}
