package rpc

import (
	"github.com/ava-labs/keystore-cli/pkg/keystore"
)

// Header is embedded in every request. RequestID is generated by the caller.
type Header struct {
	RequestID string `json:"requestId"`
}

func (h *Header) requestID() string { return h.RequestID }

// Result is embedded in every response. RequestID echoes the request.
// Error is set when the operation failed; result fields are then empty.
type Result struct {
	RequestID string              `json:"requestId"`
	Error     *keystore.WireError `json:"error,omitempty"`
}

func (r *Result) result() *Result { return r }

type request interface {
	requestID() string
}

type response interface {
	result() *Result
}

type GetKeyIDsRequest struct {
	Header
}

type GetKeyIDsResponse struct {
	Result
	KeyIDs []string `json:"keyIds,omitempty"`
}

type GetPublicKeyDataRequest struct {
	Header
	KeyID string `json:"keyId"`
}

type GetPublicKeyDataResponse struct {
	Result
	PublicData *keystore.PublicKeyData `json:"publicData,omitempty"`
}

type GetPrivateKeyDataRequest struct {
	Header
	KeyID    string `json:"keyId"`
	Password []byte `json:"password"`
}

type GetPrivateKeyDataResponse struct {
	Result
	PrivateData *keystore.PrivateKeyData `json:"privateData,omitempty"`
}

type SaveKeyRequest struct {
	Header
	KeyID       string                  `json:"keyId"`
	Password    []byte                  `json:"password"`
	PrivateData keystore.PrivateKeyData `json:"privateData"`
	// PublicData may be omitted to keep the existing public data.
	PublicData *keystore.PublicKeyData `json:"publicData,omitempty"`
}

type SavePublicKeyDataRequest struct {
	Header
	KeyID      string                 `json:"keyId"`
	PublicData keystore.PublicKeyData `json:"publicData"`
}

type RemoveKeyRequest struct {
	Header
	KeyID string `json:"keyId"`
}

type ChangePasswordRequest struct {
	Header
	KeyID       string `json:"keyId"`
	OldPassword []byte `json:"oldPassword"`
	NewPassword []byte `json:"newPassword"`
}

type NeedsRehashRequest struct {
	Header
	KeyID string `json:"keyId"`
}

type NeedsRehashResponse struct {
	Result
	NeedsRehash bool `json:"needsRehash"`
}

// EmptyResponse answers operations without a result value.
type EmptyResponse struct {
	Result
}

type SignHashRequest struct {
	Header
	KeyID    string `json:"keyId"`
	Password []byte `json:"password"`
	Digest   []byte `json:"digest"`
}

type SignHashResponse struct {
	Result
	Signature []byte `json:"signature,omitempty"`
}
