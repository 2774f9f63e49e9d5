// rrb is a small companion tool for poking at a request broker
// deployment: run an echo worker, issue a single request, publish a
// message or tail a channel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leifb/redis-request-broker/broker"
)

var (
	redisAddr     string
	prefix        string
	timeout       time.Duration
	minRecipients int
	debug         bool
)

var rootCmd = &cobra.Command{
	Use:   "rrb",
	Short: "Request broker and pub/sub over Redis",
	Long: `rrb talks the request-broker protocol: requests travel over a Redis
list with pub/sub wake-ups, responses and fan-out messages over pub/sub
channels. Point it at the same Redis and prefix as your application.`,
	SilenceUsage: true,
}

func commonOpts() []broker.Option {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	cobra.CheckErr(err)
	return []broker.Option{
		broker.WithRedis(&redis.Options{Addr: redisAddr}),
		broker.WithPrefix(prefix),
		broker.WithTimeout(timeout),
		broker.WithLogger(logger),
	}
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

var workerCmd = &cobra.Command{
	Use:   "worker <queue>",
	Short: "Run an echo worker on a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := broker.NewWorker(args[0], func(c *broker.Context) (any, error) {
			var v any
			if err := c.Bind(&v); err != nil {
				return nil, err
			}
			return v, nil
		}, commonOpts()...)
		if err := w.Listen(cmd.Context()); err != nil {
			return err
		}
		waitForSignal()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.Stop(ctx)
	},
}

var requestCmd = &cobra.Command{
	Use:   "request <queue> <json>",
	Short: "Send one request and print the response",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data any
		if err := json.Unmarshal([]byte(args[1]), &data); err != nil {
			return fmt.Errorf("payload is not valid JSON: %w", err)
		}
		c := broker.NewClient(args[0], commonOpts()...)
		if err := c.Connect(cmd.Context()); err != nil {
			return err
		}
		defer c.Disconnect(context.Background())

		resp, err := c.Request(cmd.Context(), data)
		if err != nil {
			return err
		}
		fmt.Println(string(resp))
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <channel> <json>",
	Short: "Publish one message and print the recipient count",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var message any
		if err := json.Unmarshal([]byte(args[1]), &message); err != nil {
			return fmt.Errorf("message is not valid JSON: %w", err)
		}
		opts := append(commonOpts(), broker.WithMinimumRecipients(minRecipients))
		p := broker.NewPublisher(args[0], opts...)
		if err := p.Connect(cmd.Context()); err != nil {
			return err
		}
		defer p.Disconnect(context.Background())

		count, err := p.Publish(cmd.Context(), message)
		if err != nil {
			return err
		}
		fmt.Printf("delivered to %d recipients\n", count)
		return nil
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <channel>",
	Short: "Print every message published on a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := broker.NewSubscriber(args[0], func(c *broker.Context) error {
			fmt.Printf("%s %s\n", c.MessageID(), c.Raw())
			return nil
		}, commonOpts()...)
		if err := s.Listen(cmd.Context()); err != nil {
			return err
		}
		waitForSignal()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "redis address")
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", "rrb:", "keyspace prefix")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	publishCmd.Flags().IntVar(&minRecipients, "min-recipients", 0, "minimum recipient count")
	rootCmd.AddCommand(workerCmd, requestCmd, publishCmd, subscribeCmd)
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
