package kurrentdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/imis-health/casetracker/internal/shared/types"
)

// Event is a record to append to a stream. Data and Metadata are stored as JSON.
type Event struct {
	ID       types.ID
	Type     string
	Data     any
	Metadata map[string]string
}

// Publisher appends events to KurrentDB streams.
type Publisher struct {
	client *Client
}

// NewPublisher creates a new KurrentDB-backed publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Append writes events to the end of a stream in one request. Event ids are
// reused as KurrentDB event ids so a retried append is deduplicated.
func (p *Publisher) Append(ctx context.Context, stream string, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	esdbEvents := make([]esdb.EventData, len(events))
	for i, event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}

		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		esdbEvents[i] = esdb.EventData{
			EventType:   event.Type,
			ContentType: esdb.ContentTypeJson,
			Data:        data,
			Metadata:    metadata,
			EventID:     toUUID(event.ID),
		}
	}

	_, err := p.client.DB().AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvents...)
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", stream, err)
	}
	return nil
}

// Health checks the KurrentDB connection.
func (p *Publisher) Health(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}

// toUUID converts a types.ID to uuid.UUID.
func toUUID(id types.ID) uuid.UUID {
	parsed, err := uuid.Parse(string(id))
	if err != nil {
		// Generate a new UUID if parsing fails
		return uuid.New()
	}
	return parsed
}
