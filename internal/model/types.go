package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// AgentID identifies an agent within one population. IDs increase
// monotonically and are never reused, so removing agents cannot make a
// partner reference point at a different agent.
type AgentID int64

// NoPartner marks an agent without a partner.
const NoPartner AgentID = -1

type Agent struct {
	ID      AgentID `json:"id"`
	Age     int     `json:"age"`
	Female  bool    `json:"is_female"`
	Partner AgentID `json:"partner"`
}

func (a Agent) HasPartner() bool {
	return a.Partner != NoPartner
}

// StepMetrics are the counts produced by one simulation step.
type StepMetrics struct {
	Step           int `json:"step"`
	Births         int `json:"births"`
	Deaths         int `json:"deaths"`
	PopulationSize int `json:"population_size"`
}

// TimeSeries holds one entry per completed step. The three slices are
// always the same length.
type TimeSeries struct {
	PopSize []int `json:"pop_size"`
	Deaths  []int `json:"deaths"`
	Births  []int `json:"births"`
}

func (ts *TimeSeries) Append(m StepMetrics) {
	ts.PopSize = append(ts.PopSize, m.PopulationSize)
	ts.Deaths = append(ts.Deaths, m.Deaths)
	ts.Births = append(ts.Births, m.Births)
}

func (ts TimeSeries) Len() int {
	return len(ts.PopSize)
}

// Final returns the last recorded population size, or -1 for an empty series.
func (ts TimeSeries) Final() int {
	if len(ts.PopSize) == 0 {
		return -1
	}
	return ts.PopSize[len(ts.PopSize)-1]
}

func (ts TimeSeries) TotalBirths() int {
	return sum(ts.Births)
}

func (ts TimeSeries) TotalDeaths() int {
	return sum(ts.Deaths)
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

// RunRecord is the index entry kept for every scheduled run.
type RunRecord struct {
	VersionedRecord
	BatchID         string `json:"batch_id"`
	OutputDir       string `json:"output_dir"`
	Seed            int64  `json:"seed"`
	Status          Status `json:"status"`
	Steps           int    `json:"steps"`
	FinalPopulation int    `json:"final_population"`
	TotalBirths     int    `json:"total_births"`
	TotalDeaths     int    `json:"total_deaths"`
	Error           string `json:"error,omitempty"`
	DurationMS      int64  `json:"duration_ms"`
	CreatedAtUTC    string `json:"created_at_utc"`
}
