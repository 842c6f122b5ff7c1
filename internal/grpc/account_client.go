package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"restaurant-chat/internal/auth"
	"restaurant-chat/internal/models"
)

const verifyMethod = "/account.AccountService/Verify"

// AccountClient verifies tokens against the account service.
type AccountClient struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewAccountClient constructs the wrapper.
func NewAccountClient(conn grpc.ClientConnInterface, timeout time.Duration) *AccountClient {
	return &AccountClient{conn: conn, timeout: timeout}
}

// Verify resolves a token to the identity the account service issued it for.
func (a *AccountClient) Verify(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, auth.ErrMissingToken
	}
	req, err := structpb.NewStruct(map[string]interface{}{"token": token})
	if err != nil {
		return models.Identity{}, err
	}

	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, verifyMethod, req, resp); err != nil {
		switch status.Code(err) {
		case codes.Unauthenticated, codes.InvalidArgument, codes.NotFound:
			return models.Identity{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
		}
		return models.Identity{}, fmt.Errorf("account service: %w", err)
	}

	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		return models.Identity{}, auth.ErrInvalidToken
	}
	return auth.NewIdentity(fields["id"].GetStringValue(), fields["role"].GetStringValue())
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
