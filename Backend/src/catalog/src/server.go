package main

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ahinestrog/bookstore-storefront/rpc/catalogrpc"
)

type CatalogServer struct {
	svc *Service
}

func NewCatalogServer(svc *Service) *CatalogServer { return &CatalogServer{svc: svc} }

func (s *CatalogServer) ListBooks(ctx context.Context, in *catalogrpc.ListBooksRequest) (*catalogrpc.ListBooksResponse, error) {
	f := Filter{Q: in.Q, AuthorID: in.AuthorId, CategoryID: in.CategoryId}
	items, total, page, size, err := s.svc.Page(ctx, f, in.Page, in.PageSize)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list: %v", err)
	}

	out := make([]*catalogrpc.Book, 0, len(items))
	for _, b := range items {
		out = append(out, bookToRPC(b))
	}
	p := newPage(out, page, size, total)
	return &catalogrpc.ListBooksResponse{
		Items: out,
		Page: &catalogrpc.PageInfo{
			Page:       page,
			PageSize:   size,
			TotalPages: p.TotalPages,
			TotalItems: total,
		},
	}, nil
}

func (s *CatalogServer) GetBook(ctx context.Context, in *catalogrpc.GetBookRequest) (*catalogrpc.Book, error) {
	id, err := strconv.ParseInt(in.Id, 10, 64)
	if err != nil || id <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "invalid book id %q", in.Id)
	}
	b, err := s.svc.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "%v", err)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get: %v", err)
	}
	return bookToRPC(b), nil
}
