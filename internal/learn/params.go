package learn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tangled/internal/instructions"
	"tangled/internal/mutator"
)

var ErrInvalidParameters = errors.New("invalid learning parameters")

var validate = validator.New()

type Parameters struct {
	Mutation mutator.Parameters `yaml:"mutation" json:"mutation"`

	Instructions      []string `yaml:"instructions" json:"instructions,omitempty"`
	NbRegisters       int      `yaml:"nbRegisters" json:"nbRegisters" validate:"gte=1"`
	NbProgramConstant int      `yaml:"nbProgramConstant" json:"nbProgramConstant" validate:"gte=0"`

	ArchiveSize          int     `yaml:"archiveSize" json:"archiveSize" validate:"gte=1"`
	ArchivingProbability float64 `yaml:"archivingProbability" json:"archivingProbability" validate:"gte=0,lte=1"`

	NbIterationsPerPolicyEvaluation uint64  `yaml:"nbIterationsPerPolicyEvaluation" json:"nbIterationsPerPolicyEvaluation" validate:"gte=1"`
	NbIterationsPerJob              uint64  `yaml:"nbIterationsPerJob" json:"nbIterationsPerJob" validate:"gte=1"`
	MaxNbActionsPerEval             uint64  `yaml:"maxNbActionsPerEval" json:"maxNbActionsPerEval" validate:"gte=1"`
	MaxNbEvaluationPerPolicy        uint64  `yaml:"maxNbEvaluationPerPolicy" json:"maxNbEvaluationPerPolicy" validate:"gte=1"`
	RatioDeletedRoots               float64 `yaml:"ratioDeletedRoots" json:"ratioDeletedRoots" validate:"gte=0,lt=1"`
	NbGenerations                   uint64  `yaml:"nbGenerations" json:"nbGenerations"`
	DoValidation                    bool    `yaml:"doValidation" json:"doValidation"`
	NbThreads                       int     `yaml:"nbThreads" json:"nbThreads" validate:"gte=1"`

	// Adversarial training.
	AgentsPerEvaluation int `yaml:"agentsPerEvaluation" json:"agentsPerEvaluation" validate:"gte=2"`
	NbChampions         int `yaml:"nbChampions" json:"nbChampions" validate:"gte=1"`

	// Continuous training.
	TotalInteractions  uint64 `yaml:"totalInteractions" json:"totalInteractions" validate:"gte=1"`
	DecimationInterval uint64 `yaml:"decimationInterval" json:"decimationInterval" validate:"gte=1"`
}

func DefaultParameters() Parameters {
	return Parameters{
		Mutation:                        mutator.DefaultParameters(),
		Instructions:                    instructions.DefaultNames(),
		NbRegisters:                     8,
		NbProgramConstant:               0,
		ArchiveSize:                     50,
		ArchivingProbability:            0.05,
		NbIterationsPerPolicyEvaluation: 5,
		NbIterationsPerJob:              1,
		MaxNbActionsPerEval:             1000,
		MaxNbEvaluationPerPolicy:        1000,
		RatioDeletedRoots:               0.5,
		NbGenerations:                   500,
		NbThreads:                       runtime.NumCPU(),
		AgentsPerEvaluation:             2,
		NbChampions:                     5,
		TotalInteractions:               1000,
		DecimationInterval:              1,
	}
}

// Validate checks field bounds and the relations between fields.
func (p Parameters) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if err := p.Mutation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if p.NbIterationsPerPolicyEvaluation > p.MaxNbEvaluationPerPolicy {
		return fmt.Errorf("%w: nbIterationsPerPolicyEvaluation (%d) exceeds maxNbEvaluationPerPolicy (%d)",
			ErrInvalidParameters, p.NbIterationsPerPolicyEvaluation, p.MaxNbEvaluationPerPolicy)
	}
	if p.NbIterationsPerJob > p.NbIterationsPerPolicyEvaluation {
		return fmt.Errorf("%w: nbIterationsPerJob (%d) exceeds nbIterationsPerPolicyEvaluation (%d)",
			ErrInvalidParameters, p.NbIterationsPerJob, p.NbIterationsPerPolicyEvaluation)
	}
	return nil
}

// LoadParameters reads a YAML file over DefaultParameters. Unknown keys are
// rejected.
func LoadParameters(path string) (Parameters, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("read parameters: %w", err)
	}
	return ParseParameters(raw)
}

func ParseParameters(raw []byte) (Parameters, error) {
	p := DefaultParameters()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Parameters{}, fmt.Errorf("decode parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}
