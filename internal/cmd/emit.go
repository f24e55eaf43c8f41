package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/panebus/internal/config"
	"github.com/Iron-Ham/panebus/internal/errors"
	"github.com/Iron-Ham/panebus/internal/event"
	"github.com/Iron-Ham/panebus/internal/pubsub"
)

var emitCmd = &cobra.Command{
	Use:   "emit <type> [key=value...]",
	Short: "Publish a single event",
	Long: `Publish one event of the given type and exit.

Fields are given as key=value pairs. Values are read as YAML scalars,
so numbers and booleans keep their type:

  panebus emit build.finished target=web ok=true seconds=42`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmit,
}

var emitTimeout time.Duration

func init() {
	emitCmd.Flags().DurationVar(&emitTimeout, "timeout", 2*time.Second, "how long to wait for the bus before giving up")
	rootCmd.AddCommand(emitCmd)
}

func runEmit(cmd *cobra.Command, args []string) error {
	eventType := strings.TrimSpace(args[0])
	if eventType == "" {
		return errors.Wrap(errors.ErrInvalidInput, "event type must not be empty")
	}
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), emitTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, pubsub.ZMQDialer{})
	if err != nil {
		return err
	}
	defer a.close()

	e := event.NewCustomEvent(eventType, fields)
	a.bus.Publish(e)

	if !cfg.Publish.ZMQ {
		fmt.Fprintln(cmd.OutOrStdout(), "publishing disabled, event not sent")
		return nil
	}

	pub, err := a.publisher()
	if err != nil {
		return err
	}
	if err := confirmDelivery(ctx, pub, e.ID()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), e.ID())
	return nil
}

// confirmDelivery waits for the publisher's connect attempt. The event was
// handed to the socket only if the publisher ended up connected.
func confirmDelivery(ctx context.Context, pub *pubsub.Publisher, id string) error {
	err := pub.Wait(ctx)
	if err == nil && !pub.Connected() {
		err = errors.ErrNotConnected
	}
	if err != nil {
		return errors.Wrapf(err, "bus at %s not reachable, event %s not delivered", pub.Endpoint(), id)
	}
	return nil
}

// parseFields turns key=value arguments into event fields. Values are decoded
// as YAML scalars; anything that does not decode is kept as a string.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "field %q: expected key=value", arg)
		}
		fields[key] = parseValue(raw)
	}
	return fields, nil
}

func parseValue(raw string) any {
	if raw == "" {
		return ""
	}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil || len(node.Content) != 1 {
		return raw
	}
	scalar := node.Content[0]
	if scalar.Kind != yaml.ScalarNode {
		return raw
	}

	var v any
	if err := scalar.Decode(&v); err != nil || v == nil {
		return raw
	}
	return v
}
