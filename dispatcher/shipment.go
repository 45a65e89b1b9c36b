package dispatcher

import (
	"context"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/runner"
)

// Service is the shipment surface the dispatcher routes to. It is satisfied
// by *lifecycle.Manager.
type Service interface {
	Start(ctx context.Context, input shipment.Input) (shipment.Record, error)
	Execute(ctx context.Context, id string, cmd shipment.Command) (shipment.Record, error)
	Resolve(ctx context.Context, id string, category shipment.Category, choice shipment.Choice) (shipment.Record, error)

	Record(ctx context.Context, id string) (shipment.Record, error)
	Status(ctx context.Context, id string) (shipment.State, error)
	DeliveryUpdate(ctx context.Context, id string) (*shipment.DeliveryUpdate, error)
	CurrentError(ctx context.Context, id string) (*shipment.ErrorDetails, error)
	Summary(ctx context.Context, id string) (shipment.WorkflowSummary, error)
	IsPaused(ctx context.Context, id string) (bool, error)
	Decisions(ctx context.Context, id string) ([]shipment.Decision, error)
	List(ctx context.Context) ([]string, error)
}

func execute[T shipment.CommandMessage](svc Service) shipment.CommandFunc[T] {
	return func(ctx context.Context, msg T) error {
		_, err := svc.Execute(ctx, msg.Target(), msg.Command())
		return err
	}
}

func probe[T interface {
	shipment.Message
	Target() string
}, R any](fn func(context.Context, string) (R, error)) shipment.QueryFunc[T, R] {
	return func(ctx context.Context, msg T) (R, error) {
		return fn(ctx, msg.Target())
	}
}

// Bind registers every shipment command and probe of svc on d. Commands run
// once; probes take runnerOpts.
func Bind(d *Dispatcher, svc Service, runnerOpts ...runner.Option) []Subscription {
	return []Subscription{
		SubscribeCommandFunc(d, shipment.CommandFunc[shipment.StartShipment](func(ctx context.Context, msg shipment.StartShipment) error {
			_, err := svc.Start(ctx, msg.Input)
			return err
		})),
		SubscribeCommandFunc(d, execute[shipment.AllocateWarehouse](svc)),
		SubscribeCommandFunc(d, execute[shipment.StartTransport](svc)),
		SubscribeCommandFunc(d, execute[shipment.UpdateCustomsStatus](svc)),
		SubscribeCommandFunc(d, execute[shipment.StartLocalDelivery](svc)),
		SubscribeCommandFunc(d, execute[shipment.MarkDelivered](svc)),
		SubscribeCommandFunc(d, execute[shipment.CancelShipment](svc)),
		SubscribeCommandFunc(d, execute[shipment.PauseShipment](svc)),
		SubscribeCommandFunc(d, execute[shipment.ResumeShipment](svc)),
		SubscribeCommandFunc(d, shipment.CommandFunc[shipment.ResolveIssue](func(ctx context.Context, msg shipment.ResolveIssue) error {
			_, err := svc.Resolve(ctx, msg.ShipmentID, msg.Category, msg.Choice)
			return err
		})),

		SubscribeQueryFunc(d, probe[shipment.GetRecord](svc.Record), runnerOpts...),
		SubscribeQueryFunc(d, probe[shipment.GetStatus](svc.Status), runnerOpts...),
		SubscribeQueryFunc(d, probe[shipment.GetDeliveryUpdate](svc.DeliveryUpdate), runnerOpts...),
		SubscribeQueryFunc(d, probe[shipment.GetCurrentError](svc.CurrentError), runnerOpts...),
		SubscribeQueryFunc(d, probe[shipment.GetSummary](svc.Summary), runnerOpts...),
		SubscribeQueryFunc(d, probe[shipment.IsPaused](svc.IsPaused), runnerOpts...),
		SubscribeQueryFunc(d, probe[shipment.GetDecisions](svc.Decisions), runnerOpts...),
		SubscribeQueryFunc(d, shipment.QueryFunc[shipment.ListShipments, []string](func(ctx context.Context, _ shipment.ListShipments) ([]string, error) {
			return svc.List(ctx)
		}), runnerOpts...),
	}
}
