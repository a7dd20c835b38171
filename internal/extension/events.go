// internal/extension/events.go
package extension

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"chartex/pkg/events"
	"chartex/pkg/platform"
	"chartex/pkg/policy"
	"chartex/pkg/problems"
)

const lowercase = "abcdefghijklmnopqrstuvwxyz"

func randomToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = lowercase[rand.Intn(len(lowercase))]
	}
	return string(b)
}

// EventHandlers holds the extension's event callbacks.
type EventHandlers struct {
	log    *zap.SugaredLogger
	policy *policy.SkipPolicy
}

func NewEventHandlers(log *zap.SugaredLogger, pol *policy.SkipPolicy) *EventHandlers {
	return &EventHandlers{log: log, policy: pol}
}

// Register binds the handlers with their status filters.
func (h *EventHandlers) Register(reg *events.Registry) error {
	if err := reg.Register("installation_status_change", []string{"installed", "uninstalled"}, h.OnInstallationStatusChange); err != nil {
		return err
	}
	return reg.Register("asset_purchase_request_processing", []string{"pending"}, h.AutoApprovePurchaseRequest)
}

func (h *EventHandlers) OnInstallationStatusChange(ctx context.Context, evt events.Event, hc events.HandlerContext) events.Outcome {
	account := fmt.Sprintf("%s (%s)", evt.OwnerName(), evt.OwnerID())
	if evt.Status() == "installed" {
		h.log.Infow("extension installed",
			"account", account, "id", evt.ID(), "environment", evt.EnvironmentID())
	} else {
		h.log.Infow("extension removed",
			"account", account, "id", evt.ID(), "environment", evt.EnvironmentID())
	}
	return events.Done()
}

// AutoApprovePurchaseRequest fills the asset parameters and approves the
// pending purchase request with the product's fulfillment template. The
// orchestrator may redeliver, so the current request state is checked before
// any write: a request that already left pending is done, not approved twice.
func (h *EventHandlers) AutoApprovePurchaseRequest(ctx context.Context, evt events.Event, hc events.HandlerContext) events.Outcome {
	paramA := randomToken(10)
	paramB := randomToken(6)
	h.log.Infow("update parameters", "param_a", paramA, "param_b", paramB)

	skip, err := h.policy.Skip(ctx, hc.Installation, evt.Payload)
	if err != nil {
		h.log.Warnw("skip policy evaluation failed", "err", err)
	}
	if skip {
		h.log.Infow("skip event for distributor account", "owner", hc.Installation.Owner.ID)
		return events.Skip()
	}

	req, err := hc.Client.GetRequest(ctx, evt.ID())
	if err != nil {
		return h.faultOutcome("fetch request", err)
	}
	if req.Status != "pending" {
		h.log.Infow("request already processed", "request", req.ID, "status", req.Status)
		return events.Done()
	}

	params := []platform.Param{
		{ID: "param_a", Value: paramA},
		{ID: "param_b", Value: paramB},
	}
	if err := hc.Client.UpdateRequestParams(ctx, req.ID, params); err != nil {
		return h.faultOutcome("update parameters", err)
	}

	productID := req.Asset.Product.ID
	h.log.Infow("search approval template", "product", productID)
	tpl, err := hc.Client.FindFulfillmentTemplate(ctx, productID)
	if err != nil {
		if problems.KindOf(err) == problems.NotFound {
			return events.Failf("no fulfillment template for product %s", productID)
		}
		return h.faultOutcome("find template", err)
	}

	h.log.Infow("approve purchase request", "request", req.ID, "template", tpl.ID)
	if err := hc.Client.ApproveRequest(ctx, req.ID, tpl.ID); err != nil {
		return h.faultOutcome("approve request", err)
	}
	h.log.Infow("purchase request approved", "request", req.ID)
	return events.Done()
}

// faultOutcome maps platform errors onto the outcome protocol: transient
// faults ask for redelivery, everything else is an explicit fail.
func (h *EventHandlers) faultOutcome(stage string, err error) events.Outcome {
	if problems.KindOf(err) == problems.Transient {
		h.log.Warnw(stage+" failed, requesting redelivery", "err", err)
		return events.Reschedule(events.DefaultRedeliveryDelay)
	}
	h.log.Errorw(stage+" failed", "err", err)
	return events.Failf("%s: %v", stage, err)
}
