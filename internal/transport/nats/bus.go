// Package nats adapts a NATS connection to the service's Publisher interface.
package nats

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/manu030/geoconsole-credits/internal/model"
	"github.com/manu030/geoconsole-credits/internal/service"
)

type Bus struct {
	nc *nats.Conn
}

var _ service.Publisher = (*Bus)(nil)

func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

// Publish marshals and publishes a credit event.
func (b *Bus) Publish(topic string, ev model.CreditEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.nc.Publish(topic, data)
}
