package rpc

import (
	"context"
	"fmt"
	"net"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
	"github.com/ava-labs/keystore-cli/pkg/wallet"
)

// Service serves keystore operations to remote callers. Operation failures are
// returned inside the response envelope; gRPC status errors are reserved for
// transport and protocol problems.
type Service struct {
	ks *keystore.Keystore
}

var _ KeystoreServer = (*Service)(nil)

// NewService creates a service backed by ks.
func NewService(ks *keystore.Keystore) *Service {
	return &Service{ks: ks}
}

func (s *Service) GetKeyIDs(_ context.Context, req *GetKeyIDsRequest) (*GetKeyIDsResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	return &GetKeyIDsResponse{Result: result(req, nil), KeyIDs: s.ks.KeyIDs()}, nil
}

func (s *Service) GetPublicKeyData(_ context.Context, req *GetPublicKeyDataRequest) (*GetPublicKeyDataResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	public, err := s.ks.PublicKeyData(req.KeyID)
	if err != nil {
		return &GetPublicKeyDataResponse{Result: result(req, err)}, nil
	}
	return &GetPublicKeyDataResponse{Result: result(req, nil), PublicData: &public}, nil
}

func (s *Service) GetPrivateKeyData(_ context.Context, req *GetPrivateKeyDataRequest) (*GetPrivateKeyDataResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(req.Password)

	private, err := s.ks.PrivateKeyData(req.KeyID, req.Password)
	if err != nil {
		return &GetPrivateKeyDataResponse{Result: result(req, err)}, nil
	}
	return &GetPrivateKeyDataResponse{Result: result(req, nil), PrivateData: &private}, nil
}

func (s *Service) SaveKey(_ context.Context, req *SaveKeyRequest) (*EmptyResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(req.Password)

	err := s.ks.SaveKey(req.KeyID, req.Password, req.PrivateData, req.PublicData)
	return &EmptyResponse{Result: result(req, err)}, nil
}

func (s *Service) SavePublicKeyData(_ context.Context, req *SavePublicKeyDataRequest) (*EmptyResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	err := s.ks.SavePublicKeyData(req.KeyID, req.PublicData)
	return &EmptyResponse{Result: result(req, err)}, nil
}

func (s *Service) RemoveKey(_ context.Context, req *RemoveKeyRequest) (*EmptyResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	err := s.ks.RemoveKey(req.KeyID)
	return &EmptyResponse{Result: result(req, err)}, nil
}

func (s *Service) ChangePassword(_ context.Context, req *ChangePasswordRequest) (*EmptyResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(req.OldPassword)
	defer memguard.WipeBytes(req.NewPassword)

	err := s.ks.ChangePassword(req.KeyID, req.OldPassword, req.NewPassword)
	return &EmptyResponse{Result: result(req, err)}, nil
}

func (s *Service) SignHash(_ context.Context, req *SignHashRequest) (*SignHashResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(req.Password)

	sig, err := wallet.SignWithKey(s.ks, req.KeyID, req.Password, req.Digest)
	if err != nil {
		return &SignHashResponse{Result: result(req, err)}, nil
	}
	return &SignHashResponse{Result: result(req, nil), Signature: sig}, nil
}

func (s *Service) NeedsRehash(_ context.Context, req *NeedsRehashRequest) (*NeedsRehashResponse, error) {
	if err := validateHeader(req); err != nil {
		return nil, err
	}
	weak, err := s.ks.NeedsRehash(req.KeyID)
	return &NeedsRehashResponse{Result: result(req, err), NeedsRehash: weak}, nil
}

func validateHeader(req request) error {
	if req.requestID() == "" {
		return status.Error(codes.InvalidArgument, "requestId is required")
	}
	return nil
}

func result(req request, err error) Result {
	return Result{RequestID: req.requestID(), Error: keystore.ToWire(err)}
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	token string
	log   *zap.Logger
}

// WithToken requires callers to present the bearer token.
func WithToken(token string) ServerOption {
	return func(o *serverOptions) { o.token = token }
}

// WithServerLogger sets the request logger.
func WithServerLogger(log *zap.Logger) ServerOption {
	return func(o *serverOptions) { o.log = log }
}

// Server wraps a gRPC server with address and lifecycle methods.
type Server struct {
	server *grpc.Server
	addr   string
	log    *zap.Logger
}

// NewServer creates a gRPC server exposing ks on addr.
func NewServer(ks *keystore.Keystore, addr string, opts ...ServerOption) *Server {
	o := serverOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors(o)...))
	RegisterKeystoreServer(s, NewService(ks))

	return &Server{server: s, addr: addr, log: o.log}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	s.addr = lis.Addr().String()
	s.log.Info("keystore server listening", zap.String("address", s.addr))
	return s.server.Serve(lis)
}

// Stop gracefully stops the server, forcing it down if ctx expires first.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.addr
}
