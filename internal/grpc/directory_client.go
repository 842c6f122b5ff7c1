package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"restaurant-chat/internal/models"
	"restaurant-chat/internal/repositories"
)

const findWaiterMethod = "/directory.DirectoryService/FindWaiter"

// DirectoryClient resolves waiters through the directory service.
type DirectoryClient struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewDirectoryClient constructs the wrapper.
func NewDirectoryClient(conn grpc.ClientConnInterface, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{conn: conn, timeout: timeout}
}

// FindWaiter returns repositories.ErrWaiterNotFound for unknown ids.
func (d *DirectoryClient) FindWaiter(ctx context.Context, waiterID string) (models.Waiter, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"id": waiterID})
	if err != nil {
		return models.Waiter{}, err
	}

	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := d.conn.Invoke(ctx, findWaiterMethod, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Waiter{}, repositories.ErrWaiterNotFound
		}
		return models.Waiter{}, fmt.Errorf("directory service: %w", err)
	}

	fields := resp.GetFields()
	id := fields["id"].GetStringValue()
	if id == "" {
		return models.Waiter{}, repositories.ErrWaiterNotFound
	}
	active := true
	if v, ok := fields["is_active"]; ok {
		active = v.GetBoolValue()
	}
	return models.Waiter{ID: id, Name: fields["name"].GetStringValue(), IsActive: active}, nil
}
