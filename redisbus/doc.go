// Package redisbus carries chat events between processes over Redis pub/sub.
//
// Bus is a chat.EventSource. PublishingStore decorates any chat.Store so that
// successful writes are announced on the Bus:
//
//	client, _ := redisbus.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
//	bus := redisbus.New(client, redisbus.WithChannel(cfg.Redis.Channel))
//	store := redisbus.NewPublishingStore(mongoStore, bus, logger)
//	session, _ := chat.NewSession(id, store, bus)
//
// The payload is JSON {"kind","id","text","author"}. Pub/sub is fire and
// forget, so events published while a subscriber is disconnected are lost;
// Session.Refresh recovers the full list.
package redisbus
