package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Transition is one interaction step recorded during fitness evaluation.
// NextState is nil for terminal transitions.
type Transition struct {
	State     []float64 `json:"state"`
	Action    int       `json:"action"`
	NextState []float64 `json:"next_state,omitempty"`
	Reward    float64   `json:"reward"`
}

// Terminal reports whether the transition ended its episode.
func (t Transition) Terminal() bool {
	return t.NextState == nil
}

type RunRecord struct {
	VersionedRecord
	RunID            string  `json:"run_id"`
	CreatedAtUTC     string  `json:"created_at_utc"`
	Scape            string  `json:"scape"`
	Seed             int64   `json:"seed"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Evaluations      int     `json:"evaluations"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	RefineIterations int     `json:"refine_iterations,omitempty"`
	RefineSkipped    bool    `json:"refine_skipped,omitempty"`
}

// ChampionRecord archives one best-of-generation individual. The record at
// generation 0 holds the champion of the initial population.
type ChampionRecord struct {
	VersionedRecord
	IndividualID string   `json:"individual_id"`
	Generation   int      `json:"generation"`
	Fitness      float64  `json:"fitness"`
	Wins         int      `json:"wins"`
	Games        int      `json:"games"`
	Size         int      `json:"size"`
	Expressions  []string `json:"expressions"`
}

type GenerationDiagnostics struct {
	Generation    int     `json:"generation"`
	BestFitness   float64 `json:"best_fitness"`
	MeanFitness   float64 `json:"mean_fitness"`
	MinFitness    float64 `json:"min_fitness"`
	MaxFitness    float64 `json:"max_fitness"`
	MedianFitness float64 `json:"median_fitness"`
	Variance      float64 `json:"variance"`
	StdDev        float64 `json:"std_dev"`
	MeanWinRatio  float64 `json:"mean_win_ratio"`
	ChampionWins  int     `json:"champion_wins"`
	ChampionGames int     `json:"champion_games"`
	ChampionSize  int     `json:"champion_size"`
	Evaluations   int     `json:"evaluations"`
}
