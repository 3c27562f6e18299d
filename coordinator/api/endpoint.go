package api

import (
	"context"
	"errors"
	"net/http"

	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"

	"github.com/absmach/fedsim/coordinator"
	pkgerrors "github.com/absmach/fedsim/pkg/errors"
)

func createRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(runReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.CreateRun(ctx, req.Run)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			Run:     run,
			Status:  run.Status(),
			created: true,
		}, nil
	}
}

func listRunsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listRunsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRunsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListRuns(ctx, req.offset, req.limit)
		if err != nil {
			return listRunsResponse{}, err
		}

		return listRunsResponse{
			Page: page,
		}, nil
	}
}

func getRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.GetRun(ctx, req.id)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			Run:    run,
			Status: run.Status(),
		}, nil
	}
}

func updateRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(updateRunReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.UpdateRun(ctx, req.Run)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			Run:    run,
			Status: run.Status(),
		}, nil
	}
}

func deleteRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.DeleteRun(ctx, req.id); err != nil {
			return runResponse{}, err
		}

		return runResponse{
			deleted: true,
		}, nil
	}
}

func startRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return messageResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return messageResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.StartRun(ctx, req.id); err != nil {
			return messageResponse{}, err
		}

		return messageResponse{
			Message: "started",
			code:    http.StatusAccepted,
		}, nil
	}
}

func stopRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return messageResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return messageResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.StopRun(ctx, req.id); err != nil {
			return messageResponse{}, err
		}

		return messageResponse{
			Message: "stopped",
		}, nil
	}
}

func statusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return statusResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return statusResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		status, err := svc.Status(ctx, req.id)
		if err != nil {
			return statusResponse{}, err
		}

		return statusResponse{
			Status: status,
		}, nil
	}
}

func historyEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return historyResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return historyResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		history, err := svc.History(ctx, req.id)
		if err != nil {
			return historyResponse{}, err
		}

		return historyResponse{
			History: history,
		}, nil
	}
}

func budgetEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return budgetResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return budgetResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		budget, err := svc.Budget(ctx, req.id)
		if err != nil {
			return budgetResponse{}, err
		}

		return budgetResponse{
			BudgetSnapshot: budget,
		}, nil
	}
}

func institutionsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return institutionsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return institutionsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		insts, err := svc.Institutions(ctx, req.id)
		if err != nil {
			return institutionsResponse{}, err
		}

		return institutionsResponse{
			Institutions: insts,
		}, nil
	}
}

func evaluateAttacksEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return attackResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return attackResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		report, err := svc.EvaluateAttacks(ctx, req.id)
		if err != nil {
			return attackResponse{}, err
		}

		return attackResponse{
			AttackReport: report,
		}, nil
	}
}

func predictEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(predictReq)
		if !ok {
			return predictionsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return predictionsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		predictions, err := svc.Predict(ctx, req.id, req.Rows)
		if err != nil {
			return predictionsResponse{}, err
		}

		return predictionsResponse{
			Predictions: predictions,
		}, nil
	}
}
