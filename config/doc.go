// Package config loads symbolws configuration.
//
// Configuration is built in layers: built-in defaults, then each file added
// with AddLayer (YAML or JSON, chosen by extension), then SYMBOLWS_*
// environment variables. Later layers only override the fields they set.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/symbolws.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Durations
//
// Durations are strings in Go syntax ("45s", "2m") and may use a day suffix
// ("14d").
//
// # Environment
//
//	SYMBOLWS_NETWORK             network.name
//	SYMBOLWS_NODES               network.nodes, comma separated
//	SYMBOLWS_REQUIRE_TLS         client.require_tls
//	SYMBOLWS_NATS_ENABLED        nats.enabled
//	SYMBOLWS_NATS_URL            nats.url
//	SYMBOLWS_NATS_TOKEN          nats.token
//	SYMBOLWS_PRICE_ENABLED       price.enabled
//	SYMBOLWS_SYMBOLS             price.symbols, comma separated
//	SYMBOLWS_CURRENCIES          price.currencies, comma separated
//	SYMBOLWS_POSTGRES_DSN        price.postgres_dsn
//	SYMBOLWS_REDIS_ADDR          price.redis.addr
//	SYMBOLWS_REDIS_PASSWORD      price.redis.password
//	SYMBOLWS_COINGECKO_API_KEY   price.coingecko.api_key
//	SYMBOLWS_HTTP_ADDR           http.addr
//	SYMBOLWS_LOG_LEVEL           logging.level
//	SYMBOLWS_LOG_FORMAT          logging.format
package config
