package notify

import (
	"fmt"

	"digido/config"
	"digido/models"
	"digido/service"
)

// BuildSenders constructs one sender per supported channel from the loaded
// configuration. Unconfigured channels still get a sender so entries routed
// to them fail permanently instead of waiting on a registration that will
// never arrive.
func BuildSenders(cfg *config.Config) (map[models.Channel]service.ChannelSender, error) {
	discord, err := NewDiscordSender(cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to build discord sender: %w", err)
	}

	return map[models.Channel]service.ChannelSender{
		models.ChannelSMS:     NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber),
		models.ChannelDiscord: discord,
		models.ChannelPush:    NewPushSender(cfg.AMQPURL, cfg.PushExchange),
	}, nil
}
