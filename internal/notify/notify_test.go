package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/logging"
	"ridehail/internal/types"
)

func TestHubDeliversToConnectedDriver(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, types.ID(r.URL.Query().Get("driver")))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?driver=d1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected("d1") }, time.Second, 10*time.Millisecond)

	err = hub.Notify(context.Background(), Notification{Type: TypeRideOffer, DriverID: "d1", RideID: "r1"})
	require.NoError(t, err)

	var got Notification
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, TypeRideOffer, got.Type)
	assert.Equal(t, types.ID("r1"), got.RideID)

	conn.Close()
	require.Eventually(t, func() bool { return !hub.Connected("d1") }, time.Second, 10*time.Millisecond)
}

func TestHubWithoutSession(t *testing.T) {
	hub := NewHub(logging.Discard())
	err := hub.Notify(context.Background(), Notification{DriverID: "nobody"})
	assert.ErrorIs(t, err, ErrNoSession)
}

type fakeSender struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.sent = append(f.sent, m)
	return "projects/p/messages/1", f.err
}

type tokenMap map[types.ID]string

func (m tokenMap) DeviceToken(_ context.Context, id types.ID) (string, error) {
	return m[id], nil
}

func TestFCMSendsToDeviceToken(t *testing.T) {
	sender := &fakeSender{}
	f := &FCM{client: sender, tokens: tokenMap{"d1": "tok-1"}}

	err := f.Notify(context.Background(), Notification{
		Type:     TypeRideOffer,
		DriverID: "d1",
		RideID:   "r1",
		Title:    "New ride",
		Data:     map[string]string{"distanceKm": "1.20"},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "tok-1", msg.Token)
	assert.Equal(t, "r1", msg.Data["rideId"])
	assert.Equal(t, TypeRideOffer, msg.Data["type"])
	assert.Equal(t, "1.20", msg.Data["distanceKm"])
	require.NotNil(t, msg.Notification)
	assert.Equal(t, "New ride", msg.Notification.Title)
}

func TestFCMSkipsDriversWithoutToken(t *testing.T) {
	sender := &fakeSender{}
	f := &FCM{client: sender, tokens: tokenMap{}}

	require.NoError(t, f.Notify(context.Background(), Notification{DriverID: "d2"}))
	assert.Empty(t, sender.sent)
}

func TestFCMSendError(t *testing.T) {
	f := &FCM{client: &fakeSender{err: errors.New("quota")}, tokens: tokenMap{"d1": "tok"}}
	err := f.Notify(context.Background(), Notification{DriverID: "d1"})
	assert.ErrorContains(t, err, "quota")
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, Notification) error {
	c.calls++
	return c.err
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &countingNotifier{err: boom}
	b := &countingNotifier{}

	err := Multi{a, b, Nop{}}.Notify(context.Background(), Notification{DriverID: "d1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestMultiNoSessionDoesNotHidePushFailure(t *testing.T) {
	pushErr := errors.New("fcm: unavailable")
	ctx := context.Background()
	n := Notification{DriverID: "d1"}

	tests := []struct {
		name       string
		notifiers  Multi
		wantErr    error
		wantNoSess bool
	}{
		{"offline feed and failed push", Multi{&countingNotifier{err: ErrNoSession}, &countingNotifier{err: pushErr}}, pushErr, false},
		{"offline feed and delivered push", Multi{&countingNotifier{err: ErrNoSession}, &countingNotifier{}}, nil, false},
		{"feed only and offline", Multi{&countingNotifier{err: ErrNoSession}}, ErrNoSession, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.notifiers.Notify(ctx, n)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantNoSess, errors.Is(err, ErrNoSession))
		})
	}
}
