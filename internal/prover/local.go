// local.go - In-process Groth16 prover over BW6-761.
//
// Circuits are compiled lazily on first use and their keys are cached on disk
// under the configured key directory, so repeated runs skip the trusted setup.

package prover

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/transactions/consolidate"
	"github.com/noctura/shield/internal/transactions/deposit"
	"github.com/noctura/shield/internal/transactions/transfer"
	"github.com/noctura/shield/internal/transactions/withdraw"
)

// Local proves in-process. Safe for concurrent use; compilation and setup of
// each circuit happen at most once.
type Local struct {
	keyDir string

	mu        sync.Mutex
	artifacts map[string]*artifact
}

type artifact struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

var (
	_ Prover   = (*Local)(nil)
	_ Verifier = (*Local)(nil)
)

// NewLocal creates a prover caching keys under keyDir. An empty keyDir keeps
// keys in memory only.
func NewLocal(keyDir string) *Local {
	return &Local{keyDir: keyDir, artifacts: make(map[string]*artifact)}
}

func blankCircuit(name string) (frontend.Circuit, error) {
	switch name {
	case CircuitDeposit:
		return &deposit.CircuitDeposit{}, nil
	case CircuitWithdraw:
		return &withdraw.CircuitWithdraw{}, nil
	case CircuitTransfer:
		return &transfer.CircuitTransfer{}, nil
	case CircuitConsolidate:
		return &consolidate.CircuitConsolidate{}, nil
	default:
		return nil, errors.WithMessage(ErrUnknownCircuit, name)
	}
}

// Prove compiles (once) and proves the named circuit for the assignment.
func (p *Local) Prove(ctx context.Context, circuit string, assignment frontend.Circuit) (*Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	art, err := p.artifact(circuit)
	if err != nil {
		return nil, err
	}

	w, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, errors.Wrapf(err, "building %s witness", circuit)
	}
	proof, err := groth16.Prove(art.ccs, art.pk, w)
	if err != nil {
		return nil, errors.Wrapf(err, "proving %s", circuit)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "serializing proof")
	}
	pub, err := w.Public()
	if err != nil {
		return nil, errors.Wrap(err, "extracting public witness")
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "serializing public witness")
	}
	return &Proof{Circuit: circuit, ProofBytes: buf.Bytes(), PublicWitness: pubBytes}, nil
}

// Verify checks a serialized proof against the circuit's verifying key.
func (p *Local) Verify(circuit string, pf *Proof) error {
	art, err := p.artifact(circuit)
	if err != nil {
		return err
	}
	proof := groth16.NewProof(ecc.BW6_761)
	if _, err := proof.ReadFrom(bytes.NewReader(pf.ProofBytes)); err != nil {
		return errors.Wrap(err, "decoding proof")
	}
	pub, err := witness.New(ecc.BW6_761.ScalarField())
	if err != nil {
		return errors.Wrap(err, "allocating public witness")
	}
	if err := pub.UnmarshalBinary(pf.PublicWitness); err != nil {
		return errors.Wrap(err, "decoding public witness")
	}
	if err := groth16.Verify(proof, art.vk, pub); err != nil {
		return errors.Wrapf(err, "verifying %s proof", circuit)
	}
	return nil
}

func (p *Local) artifact(circuit string) (*artifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if art, ok := p.artifacts[circuit]; ok {
		return art, nil
	}

	blank, err := blankCircuit(circuit)
	if err != nil {
		return nil, err
	}
	ccs, err := frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, blank)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %s circuit", circuit)
	}

	var pk groth16.ProvingKey
	var vk groth16.VerifyingKey
	if p.keyDir == "" {
		pk, vk, err = groth16.Setup(ccs)
		if err != nil {
			return nil, errors.Wrapf(err, "setting up %s keys", circuit)
		}
	} else {
		pk, vk, err = p.setupOrLoad(circuit, ccs)
		if err != nil {
			return nil, err
		}
	}

	art := &artifact{ccs: ccs, pk: pk, vk: vk}
	p.artifacts[circuit] = art
	return art, nil
}

func (p *Local) setupOrLoad(circuit string, ccs constraint.ConstraintSystem) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pkPath := filepath.Join(p.keyDir, circuit+".pk")
	vkPath := filepath.Join(p.keyDir, circuit+".vk")

	pk, pkErr := loadProvingKey(pkPath)
	vk, vkErr := loadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "setting up %s keys", circuit)
	}
	if err := os.MkdirAll(p.keyDir, 0o755); err != nil {
		return nil, nil, err
	}
	if err := saveKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := saveKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}

func saveKey(path string, key io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = key.WriteTo(f)
	return err
}

func loadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BW6_761)
	_, err = pk.ReadFrom(f)
	return pk, err
}

func loadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BW6_761)
	_, err = vk.ReadFrom(f)
	return vk, err
}
