package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
)

// ErrRequestMismatch is returned when a response does not echo the request ID.
var ErrRequestMismatch = errors.New("response does not match request")

// Client calls a remote keystore service. Operation failures are returned as
// *keystore.Error values of the same kind as on the server.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the service at target. A non-empty token is sent
// as a bearer token with every call.
func Dial(target, token string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(bearerToken(token)))
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to keystore server: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) KeyIDs(ctx context.Context) ([]string, error) {
	req := &GetKeyIDsRequest{}
	resp := &GetKeyIDsResponse{}
	if err := c.invoke(ctx, "GetKeyIDs", req, &req.Header, resp); err != nil {
		return nil, err
	}
	return resp.KeyIDs, nil
}

func (c *Client) PublicKeyData(ctx context.Context, keyID string) (keystore.PublicKeyData, error) {
	req := &GetPublicKeyDataRequest{KeyID: keyID}
	resp := &GetPublicKeyDataResponse{}
	if err := c.invoke(ctx, "GetPublicKeyData", req, &req.Header, resp); err != nil {
		return keystore.PublicKeyData{}, err
	}
	if resp.PublicData == nil {
		return keystore.PublicKeyData{}, fmt.Errorf("%w: missing public data", ErrRequestMismatch)
	}
	return *resp.PublicData, nil
}

func (c *Client) PrivateKeyData(ctx context.Context, keyID string, password []byte) (keystore.PrivateKeyData, error) {
	req := &GetPrivateKeyDataRequest{KeyID: keyID, Password: password}
	resp := &GetPrivateKeyDataResponse{}
	if err := c.invoke(ctx, "GetPrivateKeyData", req, &req.Header, resp); err != nil {
		return keystore.PrivateKeyData{}, err
	}
	if resp.PrivateData == nil {
		return keystore.PrivateKeyData{}, fmt.Errorf("%w: missing private data", ErrRequestMismatch)
	}
	return *resp.PrivateData, nil
}

func (c *Client) SaveKey(ctx context.Context, keyID string, password []byte, privateData keystore.PrivateKeyData, publicData *keystore.PublicKeyData) error {
	req := &SaveKeyRequest{KeyID: keyID, Password: password, PrivateData: privateData, PublicData: publicData}
	return c.invoke(ctx, "SaveKey", req, &req.Header, &EmptyResponse{})
}

func (c *Client) SavePublicKeyData(ctx context.Context, keyID string, publicData keystore.PublicKeyData) error {
	req := &SavePublicKeyDataRequest{KeyID: keyID, PublicData: publicData}
	return c.invoke(ctx, "SavePublicKeyData", req, &req.Header, &EmptyResponse{})
}

func (c *Client) RemoveKey(ctx context.Context, keyID string) error {
	req := &RemoveKeyRequest{KeyID: keyID}
	return c.invoke(ctx, "RemoveKey", req, &req.Header, &EmptyResponse{})
}

func (c *Client) ChangePassword(ctx context.Context, keyID string, oldPassword, newPassword []byte) error {
	req := &ChangePasswordRequest{KeyID: keyID, OldPassword: oldPassword, NewPassword: newPassword}
	return c.invoke(ctx, "ChangePassword", req, &req.Header, &EmptyResponse{})
}

// SignHash asks the server to sign a 32-byte digest with keyID.
func (c *Client) SignHash(ctx context.Context, keyID string, password, digest []byte) ([]byte, error) {
	req := &SignHashRequest{KeyID: keyID, Password: password, Digest: digest}
	resp := &SignHashResponse{}
	if err := c.invoke(ctx, "SignHash", req, &req.Header, resp); err != nil {
		return nil, err
	}
	return resp.Signature, nil
}

// NeedsRehash reports whether keyID is encrypted with less work than the server's current settings.
func (c *Client) NeedsRehash(ctx context.Context, keyID string) (bool, error) {
	req := &NeedsRehashRequest{KeyID: keyID}
	resp := &NeedsRehashResponse{}
	if err := c.invoke(ctx, "NeedsRehash", req, &req.Header, resp); err != nil {
		return false, err
	}
	return resp.NeedsRehash, nil
}

// invoke stamps a fresh request ID, performs the call and checks the echo.
func (c *Client) invoke(ctx context.Context, method string, req any, header *Header, resp response) error {
	header.RequestID = uuid.NewString()

	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return err
	}

	res := resp.result()
	if res.RequestID != header.RequestID {
		return fmt.Errorf("%w: sent %s, got %q", ErrRequestMismatch, header.RequestID, res.RequestID)
	}
	if res.Error != nil {
		return keystore.FromWire(res.Error)
	}
	return nil
}

// bearerToken sends a static token. Transport security is left to the deployment.
type bearerToken string

func (t bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

func (bearerToken) RequireTransportSecurity() bool {
	return false
}
