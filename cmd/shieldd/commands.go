// commands.go - Administrative subcommand actions
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/urfave/cli/v3"

	"github.com/noctura/shield/internal/engine"
	"github.com/noctura/shield/internal/note"
)

func runBalance(ctx context.Context, cmd *cli.Command) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	token := cmd.String("token")
	if _, err := a.wallet.SyncLeaves(ctx, a.reader); err != nil {
		return err
	}
	if err := a.wallet.ReconcileSpent(ctx, a.reader); err != nil {
		return err
	}
	a.saveWallet()

	balance := a.wallet.Balance(token)
	a.metrics.RecordBalance(token, float64(balance.Int64()))
	fmt.Printf("%s %s (%d unspent note(s))\n", balance, token, len(a.wallet.UnspentByToken(token)))
	return nil
}

func runDeposit(ctx context.Context, cmd *cli.Command) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	token := cmd.String("token")
	amount := big.NewInt(int64(cmd.Int("amount")))
	rec, err := a.engine.Deposit(ctx, token, amount, cmd.Bool("priority"))
	if err != nil {
		a.metrics.RecordError("deposit")
		return err
	}
	a.saveWallet()

	a.logger.Audit("deposit", map[string]interface{}{
		"token": token, "gross": amount.String(), "net": rec.Note.Amount.String(), "tx": rec.Signature,
	})
	fmt.Printf("shielded %s %s (net %s after fee), leaf %d\n", amount, token, rec.Note.Amount, rec.LeafIndex)
	return nil
}

func runTransfer(ctx context.Context, cmd *cli.Command) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	req := engine.NewRequest(engine.KindShieldedToShielded, cmd.String("token"), big.NewInt(int64(cmd.Int("amount"))))
	if to := cmd.String("to"); to != "" {
		pk, err := parseDeliveryKey(to)
		if err != nil {
			return err
		}
		req.RecipientKey = pk
	}

	res, err := a.engine.Execute(ctx, req)
	a.saveWallet()
	if err != nil {
		a.metrics.RecordError("transfer")
		return err
	}
	a.metrics.RecordTransfer(string(req.Kind))

	a.logger.Audit("transfer", map[string]interface{}{
		"request": req.ID.String(), "token": req.TokenType, "amount": req.Amount.String(), "steps": len(res.Steps),
	})
	fmt.Printf("transfer %s: %s, %d step(s) committed\n", req.ID, res.State, len(res.Steps))
	return nil
}

func runWithdraw(ctx context.Context, cmd *cli.Command) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	req := engine.NewRequest(engine.KindWithdraw, cmd.String("token"), big.NewInt(int64(cmd.Int("amount"))))
	req.Recipient = cmd.String("to")

	res, err := a.engine.Execute(ctx, req)
	a.saveWallet()
	if err != nil {
		a.metrics.RecordError("withdraw")
		return err
	}
	a.metrics.RecordTransfer(string(req.Kind))

	a.logger.Audit("withdraw", map[string]interface{}{
		"request": req.ID.String(), "token": req.TokenType, "amount": req.Amount.String(), "to": req.Recipient,
	})
	fmt.Printf("withdraw %s: %s, %d step(s) committed\n", req.ID, res.State, len(res.Steps))
	return nil
}

func runConsolidate(ctx context.Context, cmd *cli.Command) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	req := engine.NewRequest(engine.KindConsolidation, cmd.String("token"), nil)
	res, err := a.engine.Execute(ctx, req)
	a.saveWallet()
	if err != nil {
		a.metrics.RecordError("consolidate")
		return err
	}
	a.metrics.RecordConsolidationSteps(len(res.Steps))

	fmt.Printf("consolidated %s in %d step(s)\n", req.TokenType, len(res.Steps))
	return nil
}

func runExportNote(ctx context.Context, cmd *cli.Command) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	commitment, err := hex.DecodeString(cmd.String("commitment"))
	if err != nil {
		return fmt.Errorf("commitment is not valid hex: %w", err)
	}
	rec, err := a.wallet.RecordFor(commitment)
	if err != nil {
		return err
	}
	encoded, err := note.Export(rec.Note)
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

func runImportNote(ctx context.Context, cmd *cli.Command) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	n, err := note.Import(cmd.String("encoded"))
	if err != nil {
		return err
	}
	if a.wallet.HasNote(n.Commitment) {
		fmt.Println("note already present")
		return nil
	}

	token := cmd.String("token")
	a.wallet.AddRecord(note.NewRecord(n, a.wallet.Owner(), token, note.UnknownLeaf, ""))
	if _, err := a.wallet.SyncLeaves(ctx, a.reader); err != nil {
		a.logger.Warn("leaf sync after import failed: %v", err)
	}
	a.saveWallet()

	fmt.Printf("imported note of %s %s, commitment %x\n", n.Amount, token, n.Commitment)
	return nil
}

func parseDeliveryKey(encoded string) (*bls12377.G1Affine, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("recipient key is not valid hex: %w", err)
	}
	var pk bls12377.G1Affine
	if _, err := pk.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("recipient key is not a valid curve point: %w", err)
	}
	return &pk, nil
}
