// Package redis creates go-redis clients with connection verification and
// exposes a health check.
//
//	client, err := redis.Connect(ctx, redis.Config{
//		ConnectionURL: "redis://localhost:6379/0",
//		RetryAttempts: 3,
//		RetryInterval: time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	check := redis.Healthcheck(client)
//
// Only redis:// and rediss:// (TLS) URLs are accepted. Connect returns
// ErrNotReady when no ping succeeded within the retry budget or
// ConnectTimeout.
package redis
