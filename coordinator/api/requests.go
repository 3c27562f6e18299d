package api

import (
	apiutil "github.com/absmach/supermq/api/http/util"

	"github.com/absmach/fedsim/training"
)

type runReq struct {
	training.Run `json:",inline"`
}

func (r *runReq) validate() error {
	return nil
}

type updateRunReq struct {
	training.Run `json:",inline"`
}

func (r *updateRunReq) validate() error {
	if r.ID == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	return nil
}

type predictReq struct {
	id   string
	Rows [][]float64 `json:"rows"`
}

func (p *predictReq) validate() error {
	if p.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}
