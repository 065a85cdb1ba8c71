package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
	"github.com/ardkyer/rion-reservation/internal/reservation/application"
	"github.com/ardkyer/rion-reservation/internal/reservation/domain"
	"github.com/ardkyer/rion-reservation/pkg/idempotency"
	"github.com/ardkyer/rion-reservation/pkg/tracing"
)

const (
	CommandReserve = "reserve"
	CommandCancel  = "cancel"
)

// Command is the wire shape on the reservation-commands topic.
type Command struct {
	Type          string    `json:"type"`
	ListingID     uuid.UUID `json:"listing_id,omitempty"`
	UserID        uuid.UUID `json:"user_id,omitempty"`
	ReservationID uuid.UUID `json:"reservation_id,omitempty"`
	Quantity      int       `json:"quantity,omitempty"`
}

// Consumer executes reservation commands arriving over kafka. Redelivered
// messages are dropped through the redis idempotency store; client errors
// (bad quantity, insufficient stock, unknown ids) are logged and committed
// since retrying them cannot succeed.
type Consumer struct {
	log    *slog.Logger
	reader *kafka.Reader
	svc    *application.Service
	idem   *idempotency.Store
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc *application.Service, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:    log,
		reader: r,
		svc:    svc,
		idem:   idem,
		tracer: otel.Tracer("reservation-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		key := c.idem.MessageKey(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "ConsumeReservationCommand")
		c.handle(msgCtx, msg.Value)
		span.End()
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) {
	var cmd Command
	if err := json.Unmarshal(value, &cmd); err != nil {
		c.log.Error("unmarshal command failed", "err", err)
		return
	}

	switch cmd.Type {
	case CommandReserve:
		res, available, err := c.svc.Reserve(ctx, cmd.ListingID, cmd.UserID, cmd.Quantity, domain.Options{})
		if err != nil {
			c.logCommandError("reserve", err, "listing_id", cmd.ListingID, "user_id", cmd.UserID)
			return
		}
		c.log.Info("reserve command processed", "reservation_id", res.ID, "available_count", available)
	case CommandCancel:
		res, err := c.svc.Cancel(ctx, cmd.ReservationID)
		if err != nil {
			c.logCommandError("cancel", err, "reservation_id", cmd.ReservationID)
			return
		}
		c.log.Info("cancel command processed", "reservation_id", res.ID)
	default:
		c.log.Warn("unknown command type", "type", cmd.Type)
	}
}

func (c *Consumer) logCommandError(op string, err error, args ...any) {
	var insufficient *listing.InsufficientStockError
	clientErr := errors.As(err, &insufficient) ||
		errors.Is(err, listing.ErrNotFound) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrDuplicateReservation) ||
		errors.Is(err, domain.ErrSelfReservation) ||
		errors.Is(err, domain.ErrInvalidState)
	if clientErr {
		c.log.Warn(op+" command rejected", append(args, "err", err)...)
		return
	}
	c.log.Error(op+" command failed", append(args, "err", err)...)
}
