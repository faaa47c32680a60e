// Package notify provides ready-made hook bodies for the transition
// engine: signed webhook deliveries and Slack incoming-webhook messages.
//
// Both notifiers expose a Hook method returning a loop.Hook, so wiring
// them up is one option at service construction:
//
//	wh := notify.NewWebhook("https://ci.example.com/hooks/loop",
//	    notify.WithSecret(os.Getenv("LOOP_WEBHOOK_SECRET")),
//	)
//	slack := notify.NewSlack(os.Getenv("SLACK_WEBHOOK_URL"))
//
//	svc := loop.MustNew(repo, loop.WithHooks(wh.Hook(), slack.Hook()))
//
// Webhook deliveries POST a JSON Event and, when a secret is configured,
// carry an HMAC-SHA256 signature over "<timestamp>.<payload>" so receivers
// can authenticate the sender and reject replays (see Sign and
// VerifySignature).
//
// Delivery failures are returned as errors and therefore logged and
// absorbed by the hook dispatcher; they never affect the transition that
// triggered them. Hooks run on the transition call path, so the HTTP
// timeouts here bound how long a slow endpoint can stall a caller.
package notify
