package api

import (
	"context"
	"encoding/json"
	"errors"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"
	"urbanharvest/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The ledger service speaks google.protobuf.Struct in both directions so it
// needs no generated stubs; field names match the REST JSON.
const (
	ledgerServiceName    = "urbanharvest.ledger.v1.LedgerService"
	methodListCatalog    = "/" + ledgerServiceName + "/ListCatalog"
	methodGetCatalogItem = "/" + ledgerServiceName + "/GetCatalogItem"
	methodListBookings   = "/" + ledgerServiceName + "/ListBookings"
	methodGetBooking     = "/" + ledgerServiceName + "/GetBooking"
	methodUserBookings   = "/" + ledgerServiceName + "/UserBookings"
)

// LedgerServer is the read-only back-office view of catalog and bookings.
type LedgerServer interface {
	ListCatalog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCatalogItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UserBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListCatalog", Handler: structHandler(methodListCatalog, LedgerServer.ListCatalog)},
		{MethodName: "GetCatalogItem", Handler: structHandler(methodGetCatalogItem, LedgerServer.GetCatalogItem)},
		{MethodName: "ListBookings", Handler: structHandler(methodListBookings, LedgerServer.ListBookings)},
		{MethodName: "GetBooking", Handler: structHandler(methodGetBooking, LedgerServer.GetBooking)},
		{MethodName: "UserBookings", Handler: structHandler(methodUserBookings, LedgerServer.UserBookings)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "urbanharvest/ledger/v1/ledger.proto",
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

type structCall func(LedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(fullMethod string, call structCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServer), ctx, req.(*structpb.Struct))
		})
	}
}

// LedgerService implements LedgerServer on top of the domain services.
type LedgerService struct {
	catalog  *service.CatalogService
	bookings *service.BookingService
	users    *service.UserService
	// system acts for API-key clients, which are trusted back-office callers
	system *domain.Caller
}

func NewLedgerService(catalog *service.CatalogService, bookings *service.BookingService, users *service.UserService) *LedgerService {
	return &LedgerService{
		catalog:  catalog,
		bookings: bookings,
		users:    users,
		system:   &domain.Caller{Role: models.RoleAdmin},
	}
}

func (s *LedgerService) ListCatalog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	t := models.ItemType(stringField(req, "itemType"))
	items, err := s.catalog.List(ctx, t)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"items": items})
}

func (s *LedgerService) GetCatalogItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	item, err := s.catalog.Resolve(ctx, models.ItemType(stringField(req, "itemType")), id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(item)
}

// ListBookings returns every booking, optionally narrowed by status.
func (s *LedgerService) ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	wantStatus := stringField(req, "status")
	if wantStatus != "" && !models.ValidBookingStatus(wantStatus) {
		return nil, status.Error(codes.InvalidArgument, "unknown status")
	}

	views, err := s.bookings.ListAll(ctx, s.system)
	if err != nil {
		return nil, grpcError(err)
	}
	filter := models.BookingFilter{Status: wantStatus}
	out := make([]models.BookingView, 0, len(views))
	for _, v := range views {
		if filter.Match(v) {
			out = append(out, v)
		}
	}
	return toStruct(map[string]any{"bookings": out})
}

func (s *LedgerService) GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	view, err := s.bookings.Get(ctx, id, s.system)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(view)
}

func (s *LedgerService) UserBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := int64(req.GetFields()["userId"].GetNumberValue())
	if userID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	filter := models.BookingFilter{
		ItemType: models.ItemType(stringField(req, "itemType")),
		Status:   stringField(req, "status"),
		Location: stringField(req, "location"),
	}
	views, err := s.users.Bookings(ctx, s.system, userID, filter)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"bookings": views})
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

// toStruct goes through JSON so the gRPC shape follows the REST json tags.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrSelfAction):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrAccountSuspended):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}
