package catalogrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

const ServiceName = "catalog.Catalog"

type Book struct {
	Id                 string      `json:"id"`
	Title              string      `json:"title"`
	Author             string      `json:"author"`
	AuthorId           int64       `json:"authorId"`
	Price              money.Money `json:"price"`
	CoverImage         string      `json:"coverImage"`
	Isbn               string      `json:"isbn"`
	CategoryId         string      `json:"categoryId,omitempty"`
	Category           string      `json:"category,omitempty"`
	Stock              int32       `json:"stock"`
	Visible            bool        `json:"visible"`
	DiscountPercentage int32       `json:"discountPercentage,omitempty"`
}

type GetBookRequest struct {
	Id string `json:"id"`
}

type ListBooksRequest struct {
	Q          string `json:"q,omitempty"`
	AuthorId   int64  `json:"authorId,omitempty"`
	CategoryId string `json:"categoryId,omitempty"`
	Page       int32  `json:"page"`
	PageSize   int32  `json:"pageSize"`
}

type PageInfo struct {
	Page       int32 `json:"page"`
	PageSize   int32 `json:"pageSize"`
	TotalPages int32 `json:"totalPages"`
	TotalItems int64 `json:"totalItems"`
}

type ListBooksResponse struct {
	Items []*Book   `json:"items"`
	Page  *PageInfo `json:"page"`
}

// CatalogServer is implemented by the catalogue service.
type CatalogServer interface {
	GetBook(context.Context, *GetBookRequest) (*Book, error)
	ListBooks(context.Context, *ListBooksRequest) (*ListBooksResponse, error)
}

type CatalogClient interface {
	GetBook(ctx context.Context, in *GetBookRequest, opts ...grpc.CallOption) (*Book, error)
	ListBooks(ctx context.Context, in *ListBooksRequest, opts ...grpc.CallOption) (*ListBooksResponse, error)
}

type catalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) CatalogClient {
	return &catalogClient{cc: cc}
}

func (c *catalogClient) GetBook(ctx context.Context, in *GetBookRequest, opts ...grpc.CallOption) (*Book, error) {
	out := new(Book)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetBook", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *catalogClient) ListBooks(ctx context.Context, in *ListBooksRequest, opts ...grpc.CallOption) (*ListBooksResponse, error) {
	out := new(ListBooksResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListBooks", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

func getBookHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBookRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).GetBook(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetBook"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).GetBook(ctx, req.(*GetBookRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listBooksHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListBooksRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).ListBooks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListBooks"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).ListBooks(ctx, req.(*ListBooksRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBook", Handler: getBookHandler},
		{MethodName: "ListBooks", Handler: listBooksHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rpc/catalogrpc/catalog.go",
}
