// Package chat is the Twitch chat front end of the cookie economy.
//
// Bot connects to Twitch IRC as TWITCH_BOT_USERNAME, joins TWITCH_CHANNELS and hands
// every message to a Handler. The Handler understands three commands:
//   - !glorp cookies [@user]: balance of the author or of another user.
//   - !glorp slots <stake>: one slot machine round.
//   - !glorp top: the five richest accounts.
//
// Any other message earns its author one cookie. A message that mentions the bot is
// answered from a bounded worker pool: the reply is generated, cookie directives in it
// are executed by the bridge, and the cleaned text is posted.
//
// Credentials: the IRC client requires an OAuth token with chat:read/chat:edit
// scopes. If TWITCH_OAUTH_TOKEN is not provided, main reuses a stored token from the
// oauth_tokens table for provider "twitch".
package chat
