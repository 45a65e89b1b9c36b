package rpc

import (
	"context"
	"time"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/dispatcher"
)

const probeTimeout = 5 * time.Second

func command[Req shipment.Message](summary string, fn func(context.Context, Req) (shipment.Record, error)) EndpointDefinition {
	var msg Req
	return NewEndpoint(EndpointSpec{
		Method:  msg.Type(),
		Kind:    MethodKindCommand,
		Summary: summary,
		Tags:    []string{"shipment", "command"},
	}, func(ctx context.Context, req RequestEnvelope[Req]) (ResponseEnvelope[shipment.Record], error) {
		rec, err := fn(ctx, req.Data)
		if err != nil {
			return ResponseEnvelope[shipment.Record]{}, err
		}
		return ResponseEnvelope[shipment.Record]{Data: rec}, nil
	})
}

func advance[Req shipment.CommandMessage](svc dispatcher.Service, summary string) EndpointDefinition {
	return command(summary, func(ctx context.Context, msg Req) (shipment.Record, error) {
		return svc.Execute(ctx, msg.Target(), msg.Command())
	})
}

func probe[Req interface {
	shipment.Message
	Target() string
}, Res any](summary string, fn func(context.Context, string) (Res, error)) EndpointDefinition {
	var msg Req
	return NewEndpoint(EndpointSpec{
		Method:     msg.Type(),
		Kind:       MethodKindQuery,
		Timeout:    probeTimeout,
		Idempotent: true,
		Summary:    summary,
		Tags:       []string{"shipment", "query"},
	}, func(ctx context.Context, req RequestEnvelope[Req]) (ResponseEnvelope[Res], error) {
		out, err := fn(ctx, req.Data.Target())
		if err != nil {
			return ResponseEnvelope[Res]{}, err
		}
		return ResponseEnvelope[Res]{Data: out}, nil
	})
}

// ShipmentEndpoints exposes every shipment command and probe of svc. Method
// names are the message types, such as "shipment.start" and "shipment.resolve".
func ShipmentEndpoints(svc dispatcher.Service) []EndpointDefinition {
	return []EndpointDefinition{
		command("Start a shipment", func(ctx context.Context, msg shipment.StartShipment) (shipment.Record, error) {
			return svc.Start(ctx, msg.Input)
		}),
		advance[shipment.AllocateWarehouse](svc, "Allocate a warehouse"),
		advance[shipment.StartTransport](svc, "Start transport"),
		advance[shipment.UpdateCustomsStatus](svc, "Enter customs clearance"),
		advance[shipment.StartLocalDelivery](svc, "Start local delivery"),
		advance[shipment.MarkDelivered](svc, "Mark the shipment delivered"),
		advance[shipment.CancelShipment](svc, "Cancel the shipment"),
		advance[shipment.PauseShipment](svc, "Pause the shipment"),
		advance[shipment.ResumeShipment](svc, "Resume the shipment"),
		command("Resolve the pending issue", func(ctx context.Context, msg shipment.ResolveIssue) (shipment.Record, error) {
			return svc.Resolve(ctx, msg.ShipmentID, msg.Category, msg.Choice)
		}),

		probe[shipment.GetStatus]("Current state", svc.Status),
		probe[shipment.GetDeliveryUpdate]("Current delivery estimate", svc.DeliveryUpdate),
		probe[shipment.GetCurrentError]("Pending issue", svc.CurrentError),
		probe[shipment.GetSummary]("Workflow summary", svc.Summary),
		probe[shipment.IsPaused]("Pause flag", svc.IsPaused),
		probe[shipment.GetRecord]("Full record", svc.Record),
		probe[shipment.GetDecisions]("Applied decisions", svc.Decisions),
		NewEndpoint(EndpointSpec{
			Method:     shipment.ListShipments{}.Type(),
			Kind:       MethodKindQuery,
			Timeout:    probeTimeout,
			Idempotent: true,
			Summary:    "Known shipment ids",
			Tags:       []string{"shipment", "query"},
		}, func(ctx context.Context, _ RequestEnvelope[shipment.ListShipments]) (ResponseEnvelope[[]string], error) {
			ids, err := svc.List(ctx)
			return ResponseEnvelope[[]string]{Data: ids}, err
		}),
	}
}

// NewShipmentServer returns a server with the shipment endpoints registered.
func NewShipmentServer(svc dispatcher.Service, opts ...Option) (*Server, error) {
	s := NewServer(opts...)
	if err := s.RegisterEndpoints(ShipmentEndpoints(svc)...); err != nil {
		return nil, err
	}
	return s, nil
}
