package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	account := in.GetFields()["account"].GetStringValue()
	passwordHash := in.GetFields()["password_hash"].GetStringValue()
	if account == "" {
		return nil, status.Error(codes.InvalidArgument, "account is required")
	}

	res, err := s.auth.Login(ctx, account, passwordHash, s.key)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out, err := structpb.NewStruct(map[string]any{
		"access_token":  res.AccessToken,
		"access_expiry": res.AccessExpiry.UTC().Format(time.RFC3339),
		"refresh_token": res.RefreshToken,
		"account":       res.Account,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *GRPCServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return wrapperspb.String(claims.Account), nil
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrWeakKey):
	case errors.Is(err, common.ErrorUnauthorized), common.IsVerificationError(err):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, common.ErrorInvalidInput):
		return status.Error(codes.InvalidArgument, "invalid input")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrRefreshConflict):
		return status.Error(codes.Aborted, "concurrent login, retry")
	}
	s.logger.Error(ctx, "call failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
