package sdk

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
)

const CTJSON string = "application/json"

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// CreateRun registers a new training run.
	//
	// example:
	//  run := sdk.Run{
	//    Name: "fraud-pilot",
	//    Config: sdk.RunConfig{Institutions: 5, Rounds: 10},
	//  }
	//  run, _ := sdk.CreateRun(run)
	//  fmt.Println(run)
	CreateRun(run Run) (Run, error)

	// GetRun gets a run by id.
	//
	// example:
	//  run, _ := sdk.GetRun("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(run)
	GetRun(id string) (Run, error)

	// ListRuns lists runs.
	//
	// example:
	//  runPage, _ := sdk.ListRuns(0, 10)
	//  fmt.Println(runPage)
	ListRuns(offset uint64, limit uint64) (RunPage, error)

	// UpdateRun updates a run's name, configuration, or schedule.
	//
	// example:
	//  run := sdk.Run{
	//    ID:   "b1d10738-c5d7-4ff1-8f4d-b9328ce6f040",
	//    Name: "fraud-pilot-v2",
	//  }
	//  run, _ := sdk.UpdateRun(run)
	//  fmt.Println(run)
	UpdateRun(run Run) (Run, error)

	// DeleteRun deletes a run together with its stored results.
	//
	// example:
	//  _ = sdk.DeleteRun("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	DeleteRun(id string) error

	// StartRun launches training for a run.
	//
	// example:
	//  _ = sdk.StartRun("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	StartRun(id string) error

	// StopRun cancels an active run.
	//
	// example:
	//  _ = sdk.StopRun("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	StopRun(id string) error

	// Status reports the training status of a run.
	//
	// example:
	//  status, _ := sdk.Status("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(status)
	Status(id string) (string, error)

	// History returns the per-round metrics of a run.
	//
	// example:
	//  history, _ := sdk.History("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(history)
	History(id string) ([]RoundRecord, error)

	// Budget returns the accumulated privacy spend of a run.
	//
	// example:
	//  budget, _ := sdk.Budget("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(budget)
	Budget(id string) (Budget, error)

	// Institutions returns the simulated participants of a run.
	//
	// example:
	//  insts, _ := sdk.Institutions("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(insts)
	Institutions(id string) ([]Institution, error)

	// EvaluateAttacks probes a completed run's model with privacy
	// attacks and returns the report.
	//
	// example:
	//  report, _ := sdk.EvaluateAttacks("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(report)
	EvaluateAttacks(id string) (AttackReport, error)

	// Predict scores raw transaction rows with a completed run's model.
	//
	// example:
	//  preds, _ := sdk.Predict("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040", rows)
	//  fmt.Println(preds)
	Predict(id string, rows [][]float64) ([]Prediction, error)
}

type fedSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *fedSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		if msg := errorMessage(body); msg != "" {
			return []byte{}, fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, msg)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
