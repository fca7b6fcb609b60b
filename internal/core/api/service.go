// Package api provides the gRPC ingest service that feeds documents into the
// message buffer from outside the bus.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/solatis/busprobe/internal/core/config"
	"github.com/solatis/busprobe/internal/types"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Status mapping, inline in handlers: oversized or non-object documents are
// INVALID_ARGUMENT, a closed buffer is UNAVAILABLE. Auth failures are mapped
// by the auth interceptor.

// SourceName marks documents that arrived through the ingest service.
const SourceName = "grpc"

// Buffer is the subset of the message buffer the service writes to.
type Buffer interface {
	Append(doc *types.Document) (*types.Document, error)
	Len() int
	Evicted() uint64
}

// IngestService implements IngestServer over a message buffer.
// Thin layer: decode, size check, append.
type IngestService struct {
	buf     Buffer
	cfg     *config.IngestConfig
	logger  *zap.Logger
	marshal protojson.MarshalOptions
}

// NewIngestService creates service instance with dependencies.
func NewIngestService(buf Buffer, cfg *config.IngestConfig, logger *zap.Logger) (*IngestService, error) {
	if buf == nil {
		return nil, fmt.Errorf("buffer cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{buf: buf, cfg: cfg, logger: logger}, nil
}

// Publish appends the request document to the buffer.
// The Struct is re-rendered as JSON and decoded the same way bus messages
// are, so numbers compare as they would for a NATS envelope.
func (s *IngestService) Publish(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "document required")
	}
	if size := proto.Size(req); size > s.cfg.MaxDocumentSize {
		return nil, status.Error(codes.InvalidArgument,
			fmt.Sprintf("%v: %d bytes exceeds maximum of %d", types.ErrDocumentTooLarge, size, s.cfg.MaxDocumentSize))
	}

	raw, err := s.marshal.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid document: %v", err))
	}
	body, err := types.DecodeJSON(raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid document: %v", err))
	}

	doc, err := s.buf.Append(&types.Document{Source: SourceName, Body: body})
	if err != nil {
		if errors.Is(err, types.ErrBufferClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	s.logger.Debug("Ingested document",
		zap.Uint64("seq", doc.Seq),
		zap.Int("bytes", len(raw)))
	return &emptypb.Empty{}, nil
}

// Count reports the current buffer size and eviction total.
func (s *IngestService) Count(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]any{
		"size":    s.buf.Len(),
		"evicted": float64(s.buf.Evicted()),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
