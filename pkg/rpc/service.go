package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "keystore.v1.Keystore"

// KeystoreServer is the server API of the keystore service.
type KeystoreServer interface {
	GetKeyIDs(context.Context, *GetKeyIDsRequest) (*GetKeyIDsResponse, error)
	GetPublicKeyData(context.Context, *GetPublicKeyDataRequest) (*GetPublicKeyDataResponse, error)
	GetPrivateKeyData(context.Context, *GetPrivateKeyDataRequest) (*GetPrivateKeyDataResponse, error)
	SaveKey(context.Context, *SaveKeyRequest) (*EmptyResponse, error)
	SavePublicKeyData(context.Context, *SavePublicKeyDataRequest) (*EmptyResponse, error)
	RemoveKey(context.Context, *RemoveKeyRequest) (*EmptyResponse, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*EmptyResponse, error)
	SignHash(context.Context, *SignHashRequest) (*SignHashResponse, error)
	NeedsRehash(context.Context, *NeedsRehashRequest) (*NeedsRehashResponse, error)
}

// ServiceDesc describes the keystore service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KeystoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetKeyIDs", KeystoreServer.GetKeyIDs),
		unaryMethod("GetPublicKeyData", KeystoreServer.GetPublicKeyData),
		unaryMethod("GetPrivateKeyData", KeystoreServer.GetPrivateKeyData),
		unaryMethod("SaveKey", KeystoreServer.SaveKey),
		unaryMethod("SavePublicKeyData", KeystoreServer.SavePublicKeyData),
		unaryMethod("RemoveKey", KeystoreServer.RemoveKey),
		unaryMethod("ChangePassword", KeystoreServer.ChangePassword),
		unaryMethod("SignHash", KeystoreServer.SignHash),
		unaryMethod("NeedsRehash", KeystoreServer.NeedsRehash),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keystore/v1/keystore.proto",
}

// RegisterKeystoreServer registers srv on s.
func RegisterKeystoreServer(s grpc.ServiceRegistrar, srv KeystoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryMethod builds the handler that protoc-gen-go-grpc would generate for one method.
func unaryMethod[Req, Resp any](name string, call func(KeystoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(KeystoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(KeystoreServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
