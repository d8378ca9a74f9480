package waclient

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"wabridge/internal/core/account"
	"wabridge/platform/logger"
)

// Factory cria adapters whatsmeow ligados ao armazenamento de credenciais.
// O vínculo accountId -> deviceJid persistido no repositório determina se
// um adapter reutiliza um dispositivo registrado ou inicia pareamento novo.
type Factory struct {
	container *sqlstore.Container
	repo      account.Repository
	logger    *logger.Logger
	qrGen     *QRGenerator
}

// NewFactory cria nova fábrica de adapters
func NewFactory(container *sqlstore.Container, repo account.Repository, log *logger.Logger, qrGen *QRGenerator) *Factory {
	return &Factory{
		container: container,
		repo:      repo,
		logger:    log.WithModule("waclient"),
		qrGen:     qrGen,
	}
}

// NewAdapter cria um adapter para a conta, reaproveitando o dispositivo
// persistido quando houver
func (f *Factory) NewAdapter(ctx context.Context, accountID string, sink account.EventSink) (account.Adapter, error) {
	device, err := f.deviceFor(ctx, accountID)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, waLog.Noop)

	adapter := &Adapter{
		accountID: accountID,
		client:    client,
		sink:      sink,
		repo:      f.repo,
		logger:    f.logger,
		qrGen:     f.qrGen,
		validator: NewJIDValidator(),
		mapper:    newMessageMapper(accountID, client, f.logger),
		stopQR:    make(chan struct{}),
	}

	client.AddEventHandler(adapter.handleEvent)

	return adapter, nil
}

// deviceFor resolve o dispositivo do armazenamento de credenciais
func (f *Factory) deviceFor(ctx context.Context, accountID string) (*store.Device, error) {
	deviceJID, err := f.repo.GetDeviceJID(ctx, accountID)
	if err != nil {
		f.logger.WarnWithFields("Failed to look up device JID, starting fresh pairing", map[string]interface{}{
			"account_id": accountID,
			"error":      err.Error(),
		})
		return f.container.NewDevice(), nil
	}

	if deviceJID == "" {
		return f.container.NewDevice(), nil
	}

	jid, err := types.ParseJID(deviceJID)
	if err != nil {
		return nil, fmt.Errorf("invalid persisted device JID %q: %w", deviceJID, err)
	}

	device, err := f.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("failed to load device store: %w", err)
	}
	if device == nil {
		// Credenciais sumiram do sqlstore; pareamento do zero.
		f.logger.WarnWithFields("Persisted device not found in credential store", map[string]interface{}{
			"account_id": accountID,
			"device_jid": deviceJID,
		})
		return f.container.NewDevice(), nil
	}

	f.logger.InfoWithFields("Reusing persisted device credentials", map[string]interface{}{
		"account_id": accountID,
		"device_jid": deviceJID,
	})
	return device, nil
}
