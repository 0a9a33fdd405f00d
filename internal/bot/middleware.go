package bot

import "context"

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.incError()
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) allow(ctx context.Context, chatID int64) bool {
	if b.opts.RateLimitPerMinute <= 0 || b.state == nil {
		return true
	}
	return b.state.Allow(ctx, chatID, b.opts.RateLimitPerMinute)
}
