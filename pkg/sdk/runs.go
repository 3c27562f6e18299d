package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const runsEndpoint = "/runs"

// RunConfig mirrors the coordinator's run configuration. Zero fields are
// omitted so the coordinator fills in its defaults.
type RunConfig struct {
	Institutions    int           `json:"institutions,omitempty"`
	Rounds          int           `json:"rounds,omitempty"`
	LocalEpochs     int           `json:"local_epochs,omitempty"`
	BatchSize       int           `json:"batch_size,omitempty"`
	UseDP           bool          `json:"use_dp,omitempty"`
	UseSecureAgg    bool          `json:"use_secure_agg,omitempty"`
	Strategy        string        `json:"strategy,omitempty"`
	Threshold       int           `json:"threshold,omitempty"`
	L2NormClip      float64       `json:"l2_norm_clip,omitempty"`
	NoiseMultiplier float64       `json:"noise_multiplier,omitempty"`
	Delta           float64       `json:"delta,omitempty"`
	CompareBaseline bool          `json:"compare_baseline,omitempty"`
	Dataset         DatasetConfig `json:"dataset"`
}

type DatasetConfig struct {
	Samples      int     `json:"samples,omitempty"`
	FraudRatio   float64 `json:"fraud_ratio,omitempty"`
	TestFraction float64 `json:"test_fraction,omitempty"`
	CSVPath      string  `json:"csv_path,omitempty"`
	Seed         int64   `json:"seed,omitempty"`
}

type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	AUC       float64 `json:"auc"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Loss      float64 `json:"loss"`
}

type Budget struct {
	Epsilon         float64 `json:"epsilon"`
	Delta           float64 `json:"delta"`
	NoiseMultiplier float64 `json:"noise_multiplier"`
	L2NormClip      float64 `json:"l2_norm_clip"`
	Steps           int     `json:"steps"`
}

type RoundRecord struct {
	Round       int       `json:"round"`
	Metrics     Metrics   `json:"metrics"`
	Budget      Budget    `json:"budget"`
	CommCostMB  float64   `json:"comm_cost_mb"`
	CompletedAt time.Time `json:"completed_at"`
}

type Institution struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	SampleCount int     `json:"sample_count"`
	FraudCount  int     `json:"fraud_count"`
	FraudRatio  float64 `json:"fraud_ratio"`
}

type Baseline struct {
	Mean           Metrics   `json:"mean"`
	PerInstitution []Metrics `json:"per_institution,omitempty"`
}

type MembershipInferenceResult struct {
	TrainConfidence    float64 `json:"train_confidence"`
	TestConfidence     float64 `json:"test_confidence"`
	ConfidenceGap      float64 `json:"confidence_gap"`
	AttackSuccessRate  float64 `json:"attack_success_rate"`
	DefenseSuccessRate float64 `json:"defense_success_rate"`
}

type ModelInversionResult struct {
	ReconstructionError float64 `json:"reconstruction_error"`
	PredictionGap       float64 `json:"prediction_gap"`
	AttackSuccessRate   float64 `json:"attack_success_rate"`
	DefenseSuccessRate  float64 `json:"defense_success_rate"`
}

type AttackReport struct {
	MembershipInference MembershipInferenceResult `json:"membership_inference"`
	ModelInversion      ModelInversionResult      `json:"model_inversion"`
	OverallDefenseRate  float64                   `json:"overall_defense_rate"`
	EvaluatedAt         time.Time                 `json:"evaluated_at"`
}

type Prediction struct {
	FraudProbability float64 `json:"fraud_probability"`
	IsFraud          bool    `json:"is_fraud"`
	Confidence       float64 `json:"confidence"`
}

type Run struct {
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Status       string        `json:"status,omitempty"`
	Config       RunConfig     `json:"config"`
	Round        int           `json:"round,omitempty"`
	Institutions []Institution `json:"institutions,omitempty"`
	History      []RoundRecord `json:"history,omitempty"`
	Budget       Budget        `json:"budget"`
	FinalMetrics *Metrics      `json:"final_metrics,omitempty"`
	Attack       *AttackReport `json:"attack,omitempty"`
	Baseline     *Baseline     `json:"baseline,omitempty"`
	CommCostMB   float64       `json:"comm_cost_mb,omitempty"`
	Error        string        `json:"error,omitempty"`
	Schedule     string        `json:"schedule,omitempty"`
	Recurring    bool          `json:"recurring,omitempty"`
	NextRun      time.Time     `json:"next_run"`
	StartTime    time.Time     `json:"start_time"`
	FinishTime   time.Time     `json:"finish_time"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type RunPage struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Total  uint64 `json:"total"`
	Runs   []Run  `json:"runs"`
}

func (sdk *fedSDK) CreateRun(run Run) (Run, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return Run{}, err
	}

	url := sdk.coordinatorURL + runsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return Run{}, err
	}

	var r Run
	if err := json.Unmarshal(body, &r); err != nil {
		return Run{}, err
	}

	return r, nil
}

func (sdk *fedSDK) GetRun(id string) (Run, error) {
	url := sdk.coordinatorURL + runsEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return Run{}, err
	}

	var r Run
	if err := json.Unmarshal(body, &r); err != nil {
		return Run{}, err
	}

	return r, nil
}

func (sdk *fedSDK) ListRuns(offset, limit uint64) (RunPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}
	url := sdk.coordinatorURL + runsEndpoint + query

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return RunPage{}, err
	}

	var p RunPage
	if err := json.Unmarshal(body, &p); err != nil {
		return RunPage{}, err
	}

	return p, nil
}

func (sdk *fedSDK) UpdateRun(run Run) (Run, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return Run{}, err
	}
	url := sdk.coordinatorURL + runsEndpoint + "/" + run.ID

	body, err := sdk.processRequest(http.MethodPut, url, data, http.StatusOK)
	if err != nil {
		return Run{}, err
	}

	var r Run
	if err := json.Unmarshal(body, &r); err != nil {
		return Run{}, err
	}

	return r, nil
}

func (sdk *fedSDK) DeleteRun(id string) error {
	url := sdk.coordinatorURL + runsEndpoint + "/" + id

	if _, err := sdk.processRequest(http.MethodDelete, url, nil, http.StatusNoContent); err != nil {
		return err
	}

	return nil
}

func (sdk *fedSDK) StartRun(id string) error {
	url := fmt.Sprintf("%s/runs/%s/start", sdk.coordinatorURL, id)

	if _, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusAccepted); err != nil {
		return err
	}

	return nil
}

func (sdk *fedSDK) StopRun(id string) error {
	url := fmt.Sprintf("%s/runs/%s/stop", sdk.coordinatorURL, id)

	if _, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusOK); err != nil {
		return err
	}

	return nil
}

func (sdk *fedSDK) Status(id string) (string, error) {
	url := fmt.Sprintf("%s/runs/%s/status", sdk.coordinatorURL, id)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return "", err
	}

	var res struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", err
	}

	return res.Status, nil
}

func (sdk *fedSDK) History(id string) ([]RoundRecord, error) {
	url := fmt.Sprintf("%s/runs/%s/history", sdk.coordinatorURL, id)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var res struct {
		History []RoundRecord `json:"history"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	return res.History, nil
}

func (sdk *fedSDK) Budget(id string) (Budget, error) {
	url := fmt.Sprintf("%s/runs/%s/budget", sdk.coordinatorURL, id)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return Budget{}, err
	}

	var b Budget
	if err := json.Unmarshal(body, &b); err != nil {
		return Budget{}, err
	}

	return b, nil
}

func (sdk *fedSDK) Institutions(id string) ([]Institution, error) {
	url := fmt.Sprintf("%s/runs/%s/institutions", sdk.coordinatorURL, id)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var res struct {
		Institutions []Institution `json:"institutions"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	return res.Institutions, nil
}

func (sdk *fedSDK) EvaluateAttacks(id string) (AttackReport, error) {
	url := fmt.Sprintf("%s/runs/%s/attacks", sdk.coordinatorURL, id)

	body, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusOK)
	if err != nil {
		return AttackReport{}, err
	}

	var report AttackReport
	if err := json.Unmarshal(body, &report); err != nil {
		return AttackReport{}, err
	}

	return report, nil
}

func (sdk *fedSDK) Predict(id string, rows [][]float64) ([]Prediction, error) {
	data, err := json.Marshal(map[string][][]float64{"rows": rows})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/runs/%s/predictions", sdk.coordinatorURL, id)

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var res struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	return res.Predictions, nil
}

// errorMessage extracts the coordinator's error payload, if any.
func errorMessage(body []byte) string {
	var res struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return ""
	}

	return res.Error
}
