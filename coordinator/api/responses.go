package api

import (
	"net/http"

	"github.com/absmach/supermq"

	"github.com/absmach/fedsim/coordinator"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
)

var (
	_ supermq.Response = (*runResponse)(nil)
	_ supermq.Response = (*listRunsResponse)(nil)
	_ supermq.Response = (*messageResponse)(nil)
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*historyResponse)(nil)
	_ supermq.Response = (*budgetResponse)(nil)
	_ supermq.Response = (*institutionsResponse)(nil)
	_ supermq.Response = (*attackResponse)(nil)
	_ supermq.Response = (*predictionsResponse)(nil)
)

type runResponse struct {
	training.Run
	Status  string `json:"status,omitempty"`
	created bool
	deleted bool
}

func (r runResponse) Code() int {
	if r.created {
		return http.StatusCreated
	}
	if r.deleted {
		return http.StatusNoContent
	}

	return http.StatusOK
}

func (r runResponse) Headers() map[string]string {
	if r.created {
		return map[string]string{
			"Location": "/runs/" + r.ID,
		}
	}

	return map[string]string{}
}

func (r runResponse) Empty() bool {
	return r.deleted
}

type listRunsResponse struct {
	training.Page
}

func (l listRunsResponse) Code() int {
	return http.StatusOK
}

func (l listRunsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRunsResponse) Empty() bool {
	return false
}

type messageResponse struct {
	Message string `json:"message"`
	code    int
}

func (m messageResponse) Code() int {
	if m.code != 0 {
		return m.code
	}

	return http.StatusOK
}

func (m messageResponse) Headers() map[string]string {
	return map[string]string{}
}

func (m messageResponse) Empty() bool {
	return false
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type historyResponse struct {
	History []training.RoundRecord `json:"history"`
}

func (h historyResponse) Code() int {
	return http.StatusOK
}

func (h historyResponse) Headers() map[string]string {
	return map[string]string{}
}

func (h historyResponse) Empty() bool {
	return false
}

type budgetResponse struct {
	privacy.BudgetSnapshot
}

func (b budgetResponse) Code() int {
	return http.StatusOK
}

func (b budgetResponse) Headers() map[string]string {
	return map[string]string{}
}

func (b budgetResponse) Empty() bool {
	return false
}

type institutionsResponse struct {
	Institutions []institution.Institution `json:"institutions"`
}

func (i institutionsResponse) Code() int {
	return http.StatusOK
}

func (i institutionsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (i institutionsResponse) Empty() bool {
	return false
}

type attackResponse struct {
	privacy.AttackReport
}

func (a attackResponse) Code() int {
	return http.StatusOK
}

func (a attackResponse) Headers() map[string]string {
	return map[string]string{}
}

func (a attackResponse) Empty() bool {
	return false
}

type predictionsResponse struct {
	Predictions []coordinator.Prediction `json:"predictions"`
}

func (p predictionsResponse) Code() int {
	return http.StatusOK
}

func (p predictionsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (p predictionsResponse) Empty() bool {
	return false
}
