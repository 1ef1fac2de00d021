// Package notify delivers driver-facing notifications over the live
// websocket feed and Firebase Cloud Messaging.
package notify

import (
	"context"
	"errors"

	"ridehail/internal/types"
)

const TypeRideOffer = "ride.offer"

var ErrNoSession = errors.New("notify: driver has no live session")

type Notification struct {
	Type     string            `json:"type"`
	DriverID types.ID          `json:"driverId"`
	RideID   types.ID          `json:"rideId,omitempty"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi sends to every notifier and joins their failures. A missing live
// session is not a failure unless no notifier had any other outcome, in which
// case ErrNoSession alone is returned.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	noSession := 0
	for _, nt := range m {
		err := nt.Notify(ctx, n)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoSession):
			noSession++
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 && noSession > 0 && noSession == len(m) {
		return ErrNoSession
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
