package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"
)

// Uploader stores a blob and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error)
}

// BlobPublisher uploads the run summary as JSON when the run finishes.
// Other lifecycle events are ignored.
type BlobPublisher struct {
	uploader Uploader
	logger   *zap.Logger
}

// NewBlobPublisher creates a blob sink over an uploader.
func NewBlobPublisher(uploader Uploader, logger *zap.Logger) (*BlobPublisher, error) {
	if uploader == nil {
		return nil, fmt.Errorf("uploader cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobPublisher{uploader: uploader, logger: logger}, nil
}

// SummaryPath is the blob path of a run summary: runs/<yyyy-mm-dd>/<run id>.json.
func SummaryPath(s *Summary) string {
	return fmt.Sprintf("runs/%s/%s.json", s.StartedAt.UTC().Format("2006-01-02"), s.RunID)
}

func (b *BlobPublisher) StartRun(ctx context.Context, run *Run) error     { return nil }
func (b *BlobPublisher) StartTest(ctx context.Context, t *Test) error     { return nil }
func (b *BlobPublisher) Log(ctx context.Context, t *Test, ev Event) error { return nil }
func (b *BlobPublisher) EndTest(ctx context.Context, t *Test) error       { return nil }

func (b *BlobPublisher) FinishRun(ctx context.Context, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	url, err := b.uploader.Upload(ctx, SummaryPath(s), data, map[string]string{
		"run_id": string(s.RunID),
		"passed": strconv.Itoa(s.Passed),
		"failed": strconv.Itoa(s.Failed),
	})
	if err != nil {
		return fmt.Errorf("failed to publish run summary: %w", err)
	}

	b.logger.Info("Run summary published", zap.String("url", url))
	return nil
}

// AzureBlobClient uploads to Azure Blob Storage using a shared key. Plain
// http endpoints are allowed so local Azurite instances work.
type AzureBlobClient struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger
	containerInit bool
}

// NewAzureBlobClient creates a client from a standard connection string.
func NewAzureBlobClient(connectionString, containerName string, logger *zap.Logger) (*AzureBlobClient, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		protocol := params["DefaultEndpointsProtocol"]
		if protocol == "" {
			protocol = "https"
		}
		suffix := params["EndpointSuffix"]
		if suffix == "" {
			suffix = "core.windows.net"
		}
		serviceURL = fmt.Sprintf("%s://%s.blob.%s", protocol, accountName, suffix)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobClient{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// Upload stores data as a JSON block blob, creating the container on first use.
func (a *AzureBlobClient) Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error) {
	if err := a.ensureContainer(ctx); err != nil {
		return "", err
	}

	metadataPtr := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		metadataPtr[k] = to.Ptr(v)
	}

	blobClient := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlockBlobClient(blobPath)
	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		Metadata: metadataPtr,
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("application/json"),
		},
	})
	if err != nil {
		a.logger.Error("Failed to upload to blob storage",
			zap.String("blob_path", blobPath),
			zap.Int("size", len(data)),
			zap.Error(err))
		return "", fmt.Errorf("blob upload failed: %w", err)
	}

	a.logger.Debug("Uploaded blob",
		zap.String("blob_path", blobPath),
		zap.Int("size_bytes", len(data)))
	return blobClient.URL(), nil
}

func (a *AzureBlobClient) ensureContainer(ctx context.Context) error {
	if a.containerInit {
		return nil
	}

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !errors.As(err, &respErr) || respErr.ErrorCode != "ContainerAlreadyExists" {
			return fmt.Errorf("failed to ensure container: %w", err)
		}
	}

	a.containerInit = true
	return nil
}

// parseConnectionString splits "Key=Value;Key=Value". Values may contain '='.
func parseConnectionString(connectionString string) map[string]string {
	params := make(map[string]string)
	for _, part := range strings.Split(connectionString, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key == "" {
			continue
		}
		params[key] = value
	}
	return params
}
