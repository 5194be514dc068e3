package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scheduler"
)

// maxStreamLen caps the stream; trimming is approximate.
const maxStreamLen = 10000

type (
	// Message is one entry read back from the stream.
	Message struct {
		ID           string
		Event        report.Event
		DefinitionID string
		InstanceID   string
		Body         json.RawMessage
	}

	// Stream publishes report lifecycle events on a redis stream.
	Stream struct {
		client redis.Cmdable
		name   string
		logger core.Logger
	}
)

var (
	_ report.Notifier     = (*Stream)(nil)
	_ scheduler.Publisher = (*Stream)(nil)
)

// NewClient connects to redis and pings it.
func NewClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func NewStream(client redis.Cmdable, conf *core.Config, logger core.Logger) *Stream {
	name := conf.Redis.Stream
	if name == "" {
		name = "reports:events"
	}
	return &Stream{client: client, name: name, logger: logger}
}

// Notify publishes completed and failed instances.
func (s *Stream) Notify(ctx context.Context, n report.Notification) error {
	body := map[string]interface{}{
		"definition_id": n.Definition.ID,
		"type":          n.Definition.Type,
		"status":        n.Instance.Status,
		"attempts":      n.Instance.Attempts,
		"artifact_ref":  n.Instance.ArtifactRef,
	}
	if f := n.Instance.Failure; f != nil {
		body["reason"] = f.Reason
		body["retryable"] = f.Retryable
	}
	return s.add(ctx, n.Event, n.Definition.ID, n.Instance.ID, body)
}

// Publish announces a scheduled submission.
func (s *Stream) Publish(ctx context.Context, ev scheduler.Event) error {
	return s.add(ctx, ev.Type, ev.DefinitionID, ev.InstanceID, ev)
}

func (s *Stream) add(ctx context.Context, ev report.Event, defID, instID string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"event":         string(ev),
			"definition_id": defID,
			"instance_id":   instID,
			"body":          string(raw),
		},
	}).Result()
	if err != nil {
		return errors.Wrapf(err, "publishing %s", ev)
	}
	s.logger.Debug("event published", core.Fields{"stream": s.name, "id": id, "event": string(ev)})
	return nil
}

// Recent returns up to count messages, newest first.
func (s *Stream) Recent(ctx context.Context, count int64) ([]Message, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.name, "+", "-", count).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading stream")
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{
			ID:           m.ID,
			Event:        report.Event(str(m.Values["event"])),
			DefinitionID: str(m.Values["definition_id"]),
			InstanceID:   str(m.Values["instance_id"]),
			Body:         json.RawMessage(str(m.Values["body"])),
		})
	}
	return out, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
