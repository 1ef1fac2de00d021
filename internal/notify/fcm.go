package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"ridehail/internal/types"
)

// TokenLookup resolves a driver's registered device token; "" means none.
type TokenLookup interface {
	DeviceToken(ctx context.Context, driverID types.ID) (string, error)
}

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM pushes notifications to the driver's registered device. Drivers
// without a device token are skipped.
type FCM struct {
	client messageSender
	tokens TokenLookup
}

func NewFCM(client *messaging.Client, tokens TokenLookup) *FCM {
	return &FCM{client: client, tokens: tokens}
}

func (f *FCM) Notify(ctx context.Context, n Notification) error {
	token, err := f.tokens.DeviceToken(ctx, n.DriverID)
	if err != nil {
		return fmt.Errorf("fcm: lookup device token: %w", err)
	}
	if token == "" {
		return nil
	}
	if _, err := f.client.Send(ctx, buildMessage(token, n)); err != nil {
		return fmt.Errorf("fcm: send: %w", err)
	}
	return nil
}

func buildMessage(token string, n Notification) *messaging.Message {
	data := make(map[string]string, len(n.Data)+2)
	for k, v := range n.Data {
		data[k] = v
	}
	data["type"] = n.Type
	if n.RideID != "" {
		data["rideId"] = string(n.RideID)
	}

	msg := &messaging.Message{
		Token: token,
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if n.Title != "" || n.Body != "" {
		msg.Notification = &messaging.Notification{Title: n.Title, Body: n.Body}
	}
	return msg
}
