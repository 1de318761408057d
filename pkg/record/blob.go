package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

// BlobStore persists execution records and checkpoints as JSON blobs in Azure
// Blob Storage. Layout within the container:
//
//	executions/<execution-id>/record.json
//	executions/<execution-id>/checkpoint-latest.json
//
// The engine is the single writer per execution, so record updates are plain
// read-modify-write without blob leases. The shared-key client mirrors the
// lightweight plugin-backend blob client so local Azurite instances over HTTP
// keep working.
type BlobStore struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger

	mu            sync.Mutex
	containerInit bool
}

// NewBlobStore creates a blob-backed store from a standard connection string.
func NewBlobStore(connectionString, containerName string, logger *zap.Logger) (*BlobStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
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

	return &BlobStore{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// CreateExecution implements Store.
func (s *BlobStore) CreateExecution(ctx context.Context, rec *ExecutionRecord) error {
	if rec == nil || rec.ExecutionID == "" {
		return fmt.Errorf("execution record needs an execution id")
	}
	return s.putJSON(ctx, recordPath(rec.ExecutionID), rec)
}

// UpdateNodeExecution implements Store.
func (s *BlobStore) UpdateNodeExecution(ctx context.Context, executionID string, node NodeExecutionRecord) error {
	return s.mutateRecord(ctx, executionID, func(rec *ExecutionRecord) {
		for i := range rec.Nodes {
			if rec.Nodes[i].NodeID == node.NodeID {
				rec.Nodes[i] = node
				return
			}
		}
		rec.Nodes = append(rec.Nodes, node)
	})
}

// UpdateExecutionStatus implements Store.
func (s *BlobStore) UpdateExecutionStatus(ctx context.Context, executionID string, status ExecutionStatus) error {
	return s.mutateRecord(ctx, executionID, func(rec *ExecutionRecord) {
		rec.Status = status
		if status.Terminal() && rec.CompletedAt == nil {
			now := time.Now().UTC()
			rec.CompletedAt = &now
		}
	})
}

// AppendMetric implements Store.
func (s *BlobStore) AppendMetric(ctx context.Context, executionID string, metric Metric) error {
	return s.mutateRecord(ctx, executionID, func(rec *ExecutionRecord) {
		rec.Metrics = append(rec.Metrics, metric)
	})
}

// AppendError implements Store.
func (s *BlobStore) AppendError(ctx context.Context, executionID string, detail ErrorDetail) error {
	return s.mutateRecord(ctx, executionID, func(rec *ExecutionRecord) {
		rec.Errors = append(rec.Errors, detail)
	})
}

// SaveCheckpoint implements Store.
func (s *BlobStore) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	if checkpoint == nil || checkpoint.ExecutionID == "" {
		return fmt.Errorf("checkpoint needs an execution id")
	}
	if err := s.putJSON(ctx, checkpointPath(checkpoint.ExecutionID), checkpoint); err != nil {
		return err
	}
	return s.mutateRecord(ctx, checkpoint.ExecutionID, func(rec *ExecutionRecord) {
		rec.Checkpoint = checkpoint
	})
}

// LoadLatestCheckpoint implements Store.
func (s *BlobStore) LoadLatestCheckpoint(ctx context.Context, executionID string) (*Checkpoint, error) {
	var checkpoint Checkpoint
	if err := s.getJSON(ctx, checkpointPath(executionID), &checkpoint); err != nil {
		if isBlobNotFound(err) {
			return nil, fmt.Errorf("%w: execution %s", sdkerrors.ErrCheckpointNotFound, executionID)
		}
		return nil, err
	}
	return &checkpoint, nil
}

// GetExecution implements Store.
func (s *BlobStore) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	var rec ExecutionRecord
	if err := s.getJSON(ctx, recordPath(executionID), &rec); err != nil {
		if isBlobNotFound(err) {
			return nil, fmt.Errorf("%w: %s", sdkerrors.ErrExecutionNotFound, executionID)
		}
		return nil, err
	}
	return &rec, nil
}

func (s *BlobStore) mutateRecord(ctx context.Context, executionID string, mutate func(*ExecutionRecord)) error {
	rec, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	mutate(rec)
	return s.putJSON(ctx, recordPath(executionID), rec)
}

func (s *BlobStore) putJSON(ctx context.Context, blobPath string, value interface{}) error {
	if err := s.ensureContainer(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode blob payload: %w", err)
	}

	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(blobPath)
	_, err = blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("application/json"),
		},
	})
	if err != nil {
		s.logger.Error("Failed to upload to blob storage",
			zap.String("blob_path", blobPath),
			zap.Int("size", len(data)),
			zap.Error(err))
		return fmt.Errorf("blob upload failed: %w", err)
	}

	return nil
}

func (s *BlobStore) getJSON(ctx context.Context, blobPath string, out interface{}) error {
	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlobClient(blobPath)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to download blob '%s': %w", blobPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read blob data: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode blob '%s': %w", blobPath, err)
	}
	return nil
}

func (s *BlobStore) ensureContainer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.containerInit {
		return nil
	}

	_, err := s.client.CreateContainer(ctx, s.containerName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "ContainerAlreadyExists" {
			s.containerInit = true
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "containeralreadyexists") {
			s.containerInit = true
			return nil
		}
		return fmt.Errorf("failed to ensure container: %w", err)
	}

	s.containerInit = true
	return nil
}

func isBlobNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return false
}

func recordPath(executionID string) string {
	return fmt.Sprintf("executions/%s/record.json", executionID)
}

func checkpointPath(executionID string) string {
	return fmt.Sprintf("executions/%s/checkpoint-latest.json", executionID)
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}
