// Package natsclient manages the NATS connection behind the NATS KV message
// store.
//
// # Overview
//
// Client wraps a *nats.Conn and its jetstream.JetStream context, tracks
// connection status through reconnects, and offers get-or-create access to
// KV buckets. TestClient starts a real NATS server in a container for
// integration tests.
//
// # Example Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("semchat"),
//	    natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err // transient, safe to retry
//	}
//	defer client.Close(context.Background())
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "semchat_messages",
//	})
//
// # Testing
//
//	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
//	bucket, err := tc.CreateKVBucket(ctx, "test_messages")
//
// TestClient needs Docker and is only used from tests built with the
// integration tag.
package natsclient
