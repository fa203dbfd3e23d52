package config

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// BaseURL is the dashboard origin used for checkout/portal redirects.
	BaseURL   string `yaml:"base_url"`
	ClientURL string `yaml:"client_url"`

	StripeSecretKey     string `yaml:"stripe_secret_key"`
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"`
	// IdentityWebhookSecret verifies the identity provider's signed
	// webhook deliveries (svix format, whsec_ prefixed).
	IdentityWebhookSecret string `yaml:"identity_webhook_secret"`
	JWTSecret             string `yaml:"jwt_secret"`

	Plans PlanConfig `yaml:"plans"`
}

// PlanConfig carries the billing provider's price ids for the paid tiers.
type PlanConfig struct {
	StarterPriceID    string `yaml:"starter_price_id"`
	ProPriceID        string `yaml:"pro_price_id"`
	EnterprisePriceID string `yaml:"enterprise_price_id"`
}
