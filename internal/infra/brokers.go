// README: Message broker connections (NATS for ride events).
package infra

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

func NewNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("ridehail-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS server: %w", err)
	}
	return conn, nil
}
