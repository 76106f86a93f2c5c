// Package config loads semchat configuration.
//
// Configuration is resolved in layers, each overriding the previous:
//
//  1. Built-in defaults (Default)
//  2. JSON or YAML (.yaml, .yml) files added with Loader.AddLayer, deep
//     merged in order
//  3. SEMCHAT_* environment variables
//
// Durations may be written as strings ("5s", "250ms") in either format.
//
// # Example
//
//	loader := config.NewLoader()
//	loader.AddLayer("semchat.json")
//	cfg, err := loader.Load()
//	if err != nil {
//	    return err
//	}
//
// # Environment Overrides
//
//	SEMCHAT_IDENTITY          fixed author name
//	SEMCHAT_STORE_DRIVER      nats, mongo or memory
//	SEMCHAT_REALTIME_DRIVER   store or redis
//	SEMCHAT_NATS_URLS         comma separated server list
//	SEMCHAT_NATS_BUCKET       KV bucket name
//	SEMCHAT_MONGO_URI         MongoDB connection string
//	SEMCHAT_REDIS_ADDR        Redis host:port
//	SEMCHAT_HTTP_ADDR         gateway listen address
//
// Credentials have matching variables (SEMCHAT_NATS_USERNAME,
// SEMCHAT_NATS_PASSWORD, SEMCHAT_NATS_TOKEN, SEMCHAT_REDIS_PASSWORD).
// Validation errors wrap errors.ErrInvalidConfig and classify as invalid.
package config
