// Package mutator builds and evolves programs and graph topology.
package mutator

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// TPGParameters drive graph initialisation and team mutation.
type TPGParameters struct {
	NbRoots                              uint64  `yaml:"nbRoots" json:"nbRoots" validate:"gte=1"`
	MaxInitOutgoingEdges                 uint64  `yaml:"maxInitOutgoingEdges" json:"maxInitOutgoingEdges" validate:"gte=1"`
	MaxOutgoingEdges                     uint64  `yaml:"maxOutgoingEdges" json:"maxOutgoingEdges" validate:"gte=2"`
	PEdgeDeletion                        float64 `yaml:"pEdgeDeletion" json:"pEdgeDeletion" validate:"gte=0,lt=1"`
	PEdgeAddition                        float64 `yaml:"pEdgeAddition" json:"pEdgeAddition" validate:"gte=0,lt=1"`
	PProgramMutation                     float64 `yaml:"pProgramMutation" json:"pProgramMutation" validate:"gt=0,lte=1"`
	PEdgeDestinationChange               float64 `yaml:"pEdgeDestinationChange" json:"pEdgeDestinationChange" validate:"gte=0,lte=1"`
	PEdgeDestinationIsAction             float64 `yaml:"pEdgeDestinationIsAction" json:"pEdgeDestinationIsAction" validate:"gte=0,lte=1"`
	ForceProgramBehaviorChangeOnMutation bool    `yaml:"forceProgramBehaviorChangeOnMutation" json:"forceProgramBehaviorChangeOnMutation"`
	MaxBehaviorMutationAttempts          int     `yaml:"maxBehaviorMutationAttempts" json:"maxBehaviorMutationAttempts" validate:"gte=1"`
}

// ProgramParameters drive line and program mutation.
type ProgramParameters struct {
	MaxProgramSize    uint64  `yaml:"maxProgramSize" json:"maxProgramSize" validate:"gte=1"`
	PDelete           float64 `yaml:"pDelete" json:"pDelete" validate:"gte=0,lte=1"`
	PAdd              float64 `yaml:"pAdd" json:"pAdd" validate:"gte=0,lte=1"`
	PMutate           float64 `yaml:"pMutate" json:"pMutate" validate:"gte=0,lte=1"`
	PSwap             float64 `yaml:"pSwap" json:"pSwap" validate:"gte=0,lte=1"`
	PConstantMutation float64 `yaml:"pConstantMutation" json:"pConstantMutation" validate:"gte=0,lte=1"`
	MinConstValue     int32   `yaml:"minConstValue" json:"minConstValue"`
	MaxConstValue     int32   `yaml:"maxConstValue" json:"maxConstValue" validate:"gtefield=MinConstValue"`
	MinParamValue     float64 `yaml:"minParamValue" json:"minParamValue"`
	MaxParamValue     float64 `yaml:"maxParamValue" json:"maxParamValue" validate:"gtefield=MinParamValue"`
}

type Parameters struct {
	TPG  TPGParameters     `yaml:"tpg" json:"tpg"`
	Prog ProgramParameters `yaml:"prog" json:"prog"`
}

func DefaultParameters() Parameters {
	return Parameters{
		TPG: TPGParameters{
			NbRoots:                     100,
			MaxInitOutgoingEdges:        3,
			MaxOutgoingEdges:            5,
			PEdgeDeletion:               0.7,
			PEdgeAddition:               0.7,
			PProgramMutation:            0.2,
			PEdgeDestinationChange:      0.1,
			PEdgeDestinationIsAction:    0.5,
			MaxBehaviorMutationAttempts: 1000,
		},
		Prog: ProgramParameters{
			MaxProgramSize:    96,
			PDelete:           0.5,
			PAdd:              0.5,
			PMutate:           1,
			PSwap:             1,
			PConstantMutation: 0.5,
			MinConstValue:     -10,
			MaxConstValue:     10,
			MinParamValue:     -10,
			MaxParamValue:     10,
		},
	}
}

var (
	ErrInvalidParameters = errors.New("invalid mutation parameters")

	validate = validator.New()
)

func (p Parameters) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if p.Prog.PDelete+p.Prog.PAdd+p.Prog.PMutate+p.Prog.PSwap == 0 {
		return fmt.Errorf("%w: at least one line mutation probability must be positive", ErrInvalidParameters)
	}
	if p.Prog.MaxProgramSize < 2 && p.Prog.PMutate == 0 {
		return fmt.Errorf("%w: single-line programs can only change with a positive pMutate", ErrInvalidParameters)
	}
	return nil
}
