// Command cache-flush drops every cached link entry under the configured
// cache prefix. Useful after bulk imports or manual database edits, since
// cached links otherwise linger until their TTL runs out.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shammaa/url-shortener/internal/cache/redis"
	"github.com/shammaa/url-shortener/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "cache-flush:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}

	c, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.FlushPrefix(ctx, cfg.Cache.Prefix)
	if err != nil {
		return err
	}

	fmt.Printf("flushed %d cached entries under prefix %q\n", n, cfg.Cache.Prefix)

	return nil
}
