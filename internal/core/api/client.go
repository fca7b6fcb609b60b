package api

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the ingest service over an existing connection.
type Client struct {
	conn    grpc.ClientConnInterface
	apiKey  string
	timeout time.Duration
}

// NewClient wraps conn. apiKey may be empty when the server runs without
// ingest secrets; timeout <= 0 leaves deadlines to the caller.
func NewClient(conn grpc.ClientConnInterface, apiKey string, timeout time.Duration) *Client {
	return &Client{conn: conn, apiKey: apiKey, timeout: timeout}
}

// PublishJSON sends one JSON object document.
func (c *Client) PublishJSON(ctx context.Context, data []byte) error {
	doc := new(structpb.Struct)
	if err := protojson.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("document must be a JSON object: %w", err)
	}
	return c.Publish(ctx, doc)
}

// Publish sends one document.
func (c *Client) Publish(ctx context.Context, doc *structpb.Struct) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.conn.Invoke(ctx, PublishMethod, doc, new(emptypb.Empty))
}

// Count returns the number of buffered documents on the server.
func (c *Client) Count(ctx context.Context) (int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, CountMethod, new(emptypb.Empty), out); err != nil {
		return 0, err
	}
	return int(out.GetFields()["size"].GetNumberValue()), nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", c.apiKey)
	}
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}
