package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"go.uber.org/zap"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/logger"
)

// MQTTPublisher is satisfied by *iotdataplane.Client.
type MQTTPublisher interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

type reservationPayload struct {
	Action    string    `json:"action"`
	Slot      string    `json:"slot"`
	BookingID string    `json:"booking_id"`
	Until     time.Time `json:"until"`
}

// IoTSpotSignaler publishes reservations to the lot controller over MQTT.
type IoTSpotSignaler struct {
	client MQTTPublisher
	thing  string
	log    *zap.Logger
}

func NewIoTSpotSignaler(client MQTTPublisher, thing string, log *zap.Logger) *IoTSpotSignaler {
	return &IoTSpotSignaler{client: client, thing: thing, log: logger.OrNop(log)}
}

func (s *IoTSpotSignaler) Topic() string {
	return fmt.Sprintf("parking/%s/reservations", s.thing)
}

func (s *IoTSpotSignaler) SignalReservation(ctx context.Context, record *domain.BookingRecord) error {
	if s.client == nil || s.thing == "" {
		return nil
	}
	payload, err := json.Marshal(reservationPayload{
		Action:    "reserve",
		Slot:      record.SlotLabel,
		BookingID: record.ID,
		Until:     record.EndTime,
	})
	if err != nil {
		return fmt.Errorf("IoTSpotSignaler.SignalReservation marshal: %w", err)
	}

	topic := s.Topic()
	_, err = s.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(topic),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("IoTSpotSignaler.SignalReservation publish: %w", err)
	}
	s.log.Info("reservation published", zap.String("topic", topic), zap.String("slot", record.SlotLabel), zap.String("booking_id", record.ID))
	return nil
}
