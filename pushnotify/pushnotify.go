// Package pushnotify is the best-effort mobile wake-up hook (C14) invoked
// by agentinfo.SendMessage after a successful upload. Failures here are
// logged, never propagated: spec.md §7's error-propagation policy binds
// the protocol's own errors, not this side channel.
package pushnotify

import (
	"context"

	"github.com/golang/glog"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Hook notifies a device associated with agentDID that a message is
// waiting. In APNSHook, deviceTokens maps agent DID to APNs device token;
// an agent with no registered device is a silent no-op, not an error.
type Hook interface {
	Notify(ctx context.Context, agentDID string) error
}

// APNSHook is the concrete, wired Hook implementation, using
// github.com/sideshow/apns2 against Apple's token-based HTTP/2 API.
type APNSHook struct {
	client       *apns2.Client
	topic        string
	deviceTokens map[string]string
}

// NewAPNSHook builds a Hook authenticating with an APNs auth-key (.p8),
// identified by keyID/teamID, targeting topic (the app's bundle ID).
// deviceTokens maps agent DID to the APNs device token registered for it.
func NewAPNSHook(authKeyPath, keyID, teamID, topic string, production bool, deviceTokens map[string]string) (*APNSHook, error) {
	authKey, err := token.AuthKeyFromFile(authKeyPath)
	if err != nil {
		return nil, err
	}
	tok := &token.Token{AuthKey: authKey, KeyID: keyID, TeamID: teamID}

	client := apns2.NewTokenClient(tok)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSHook{client: client, topic: topic, deviceTokens: deviceTokens}, nil
}

var _ Hook = (*APNSHook)(nil)

// Notify sends a content-available background push to the device
// registered for agentDID, if any.
func (h *APNSHook) Notify(_ context.Context, agentDID string) error {
	deviceToken, ok := h.deviceTokens[agentDID]
	if !ok || deviceToken == "" {
		return nil
	}

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       h.topic,
		Payload:     payload.NewPayload().ContentAvailable().AlertTitle("new message"),
		Priority:    apns2.PriorityLow,
		PushType:    apns2.PushTypeBackground,
	}

	resp, err := h.client.Push(notification)
	if err != nil {
		return err
	}
	if !resp.Sent() {
		glog.Warningf("pushnotify: apns rejected notification for %s: %d %s", agentDID, resp.StatusCode, resp.Reason)
	}
	return nil
}

// NoopHook is a Hook that never notifies; used where no push provider is
// configured.
type NoopHook struct{}

func (NoopHook) Notify(context.Context, string) error { return nil }

var _ Hook = NoopHook{}
