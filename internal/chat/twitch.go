package chat

import (
	"context"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"streamquiz/internal/logging"
)

// TwitchSource feeds Twitch IRC chat into the orchestrator. Messages
// become chat events, channel joins become join events and cheered bits
// become gift events.
type TwitchSource struct {
	channel  string
	username string
	oauth    string
	handler  Handler
}

func NewTwitchSource(channel, username, oauth string, handler Handler) *TwitchSource {
	return &TwitchSource{channel: channel, username: username, oauth: oauth, handler: handler}
}

// Run connects and blocks until the context is cancelled or the
// connection fails.
func (s *TwitchSource) Run(ctx context.Context) error {
	client := twitch.NewClient(s.username, s.oauth)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		for _, ev := range MapPrivateMessage(msg.User.Name, msg.Message, msg.Bits) {
			s.handler(ev)
		}
	})
	client.OnUserJoinMessage(func(msg twitch.UserJoinMessage) {
		s.handler(Event{Kind: KindJoin, Username: msg.User})
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		client.Disconnect()
		close(done)
	}()

	client.Join(s.channel)
	err := client.Connect()
	select {
	case <-done:
		return nil
	default:
	}
	if err != nil {
		logging.Log.Errorw("twitch chat connect error", "err", err)
	}
	return err
}

// MapPrivateMessage converts one IRC message into orchestrator events.
// A message carrying bits yields both a gift event and the chat event, in
// that order, so the gift is recorded before the text is scored.
func MapPrivateMessage(username, text string, bits int) []Event {
	events := make([]Event, 0, 2)
	if bits > 0 {
		events = append(events, Event{
			Kind:      KindGift,
			Username:  username,
			GiftName:  "bits",
			GiftCount: bits,
		})
	}
	events = append(events, Event{
		Kind:     KindChat,
		Username: username,
		Text:     text,
	})
	return events
}
